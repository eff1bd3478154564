package suggestions

import (
	"strings"

	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
	"gitlab.com/gitlab-org/ai-gateway/internal/types"
)

// Budget split for the model context window.
const (
	importsBudgetPercent = 12
	signaturesBudget     = 1024
	suffixBudgetPercent  = 7
)

// Metadata describes what the assembler produced. It is emitted to telemetry
// and never becomes part of the prompt.
type Metadata struct {
	PrefixLen             int      `json:"prefix_len"`
	SuffixLen             int      `json:"suffix_len"`
	ImportsLen            int      `json:"imports_len"`
	FunctionSignaturesLen int      `json:"function_signatures_len"`
	Experiments           []string `json:"experiments"`
}

// Assembled is the budgeted prefix/suffix pair handed to the model.
type Assembled struct {
	Prefix   string
	Suffix   string
	Metadata Metadata
}

// Assembler fits file context into a fixed token budget, biased toward the
// cursor.
type Assembler struct {
	tok         Tokenizer
	maxModelLen int
	metrics     *telemetry.Metrics
}

func NewAssembler(tok Tokenizer, maxModelLen int, metrics *telemetry.Metrics) *Assembler {
	return &Assembler{tok: tok, maxModelLen: maxModelLen, metrics: metrics}
}

// Assemble builds the final prompt halves. The prefix is
// header + imports + signatures + body prefix truncated from the left; the
// suffix is the body suffix truncated from the right.
func (a *Assembler) Assemble(file types.CurrentFile) Assembled {
	lang := file.LanguageIdentifier
	bodyPrefix := file.ContentAboveCursor
	bodySuffix := TruncateToEnclosingScope(lang, file.ContentBelowCursor)

	fc := ParseContext(lang, bodyPrefix, bodySuffix)
	if a.metrics != nil {
		for symbol, n := range fc.Symbols {
			a.metrics.SuggestionSymbols.WithLabelValues(strings.ToLower(lang), symbol).Add(float64(n))
		}
	}

	remaining := a.maxModelLen

	header := commentHeader(lang, file.FileName)
	remaining -= a.tok.Count(header)

	imports := strings.Join(fc.Imports, "\n")
	importsUsed := 0
	if imports != "" {
		imports, importsUsed = a.tok.Truncate(imports+"\n", remaining*importsBudgetPercent/100, SideRight)
		remaining -= importsUsed
		bodyPrefix = stripLines(bodyPrefix, fc.Imports)
	}

	// Signatures that survive suffix truncation stay in the suffix; only the
	// ones about to be cut off are worth hoisting, and we only know that
	// after the suffix is final. Hoist provisionally and drop duplicates
	// below.
	sigBudget := signaturesBudget
	if sigBudget > remaining {
		sigBudget = remaining
	}
	signatures := strings.Join(fc.Signatures, "\n")
	signaturesUsed := 0
	if signatures != "" {
		signatures, signaturesUsed = a.tok.Truncate(signatures+"\n", sigBudget, SideRight)
		remaining -= signaturesUsed
	}

	suffix, suffixUsed := a.tok.Truncate(bodySuffix, remaining*suffixBudgetPercent/100, SideRight)

	if signatures != "" {
		kept := make([]string, 0, len(fc.Signatures))
		for _, sig := range strings.Split(strings.TrimRight(signatures, "\n"), "\n") {
			if sig == "" || strings.Contains(suffix, sig) {
				continue
			}
			kept = append(kept, sig)
		}
		if len(kept) == 0 {
			remaining += signaturesUsed
			signatures, signaturesUsed = "", 0
		} else {
			signatures = strings.Join(kept, "\n") + "\n"
			refund := signaturesUsed - a.tok.Count(signatures)
			signaturesUsed -= refund
			remaining += refund
		}
	}

	prefix, prefixUsed := a.tok.Truncate(bodyPrefix, remaining-suffixUsed, SideLeft)

	return Assembled{
		Prefix: header + imports + signatures + prefix,
		Suffix: suffix,
		Metadata: Metadata{
			PrefixLen:             prefixUsed,
			SuffixLen:             suffixUsed,
			ImportsLen:            importsUsed,
			FunctionSignaturesLen: signaturesUsed,
			Experiments:           []string{},
		},
	}
}

// stripLines removes full lines from text so hoisted context is not repeated.
func stripLines(text string, lines []string) string {
	drop := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		drop[l] = struct{}{}
	}
	kept := make([]string, 0, strings.Count(text, "\n")+1)
	for _, line := range strings.Split(text, "\n") {
		if _, ok := drop[strings.TrimRight(line, " \t")]; ok {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
