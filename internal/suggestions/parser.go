package suggestions

import (
	"regexp"
	"strings"
)

// FileContext is what the lightweight parser extracts from the file around
// the cursor.
type FileContext struct {
	Imports    []string
	Signatures []string
	Symbols    map[string]int
}

type langRules struct {
	importRe    *regexp.Regexp
	signatureRe *regexp.Regexp
	lineComment string
	scoped      bool // indentation defines scope (python style)
}

var languages = map[string]langRules{
	"go": {
		importRe:    regexp.MustCompile(`^\s*(?:import\s.*|"[^"]+"|\w+\s+"[^"]+")$`),
		signatureRe: regexp.MustCompile(`^func\s.*\{?\s*$`),
		lineComment: "//",
	},
	"python": {
		importRe:    regexp.MustCompile(`^(?:import\s+\S+|from\s+\S+\s+import\s+.*)$`),
		signatureRe: regexp.MustCompile(`^\s*(?:def|class)\s+\w+.*:?\s*$`),
		lineComment: "#",
		scoped:      true,
	},
	"javascript": {
		importRe:    regexp.MustCompile(`^\s*(?:import\s.*|const\s+.*=\s*require\(.*)$`),
		signatureRe: regexp.MustCompile(`^\s*(?:(?:export\s+)?(?:async\s+)?function\s+\w+.*|class\s+\w+.*)$`),
		lineComment: "//",
	},
	"typescript": {
		importRe:    regexp.MustCompile(`^\s*import\s.*$`),
		signatureRe: regexp.MustCompile(`^\s*(?:(?:export\s+)?(?:async\s+)?function\s+\w+.*|class\s+\w+.*|interface\s+\w+.*)$`),
		lineComment: "//",
	},
	"java": {
		importRe:    regexp.MustCompile(`^\s*import\s+[\w.*]+;\s*$`),
		signatureRe: regexp.MustCompile(`^\s*(?:public|private|protected)\s.*\(.*\)\s*\{?\s*$`),
		lineComment: "//",
	},
	"ruby": {
		importRe:    regexp.MustCompile(`^\s*require(?:_relative)?\s+.*$`),
		signatureRe: regexp.MustCompile(`^\s*(?:def|class|module)\s+\w+.*$`),
		lineComment: "#",
	},
	"c": {
		importRe:    regexp.MustCompile(`^\s*#include\s+.*$`),
		signatureRe: regexp.MustCompile(`^\w[\w\s*]+\s+\**\w+\(.*\)\s*\{?\s*$`),
		lineComment: "//",
	},
	"cpp": {
		importRe:    regexp.MustCompile(`^\s*#include\s+.*$`),
		signatureRe: regexp.MustCompile(`^\w[\w\s:<>,*&]+\s+\**[\w:]+\(.*\)\s*\{?\s*$`),
		lineComment: "//",
	},
	"rust": {
		importRe:    regexp.MustCompile(`^\s*use\s+.*;\s*$`),
		signatureRe: regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+\w+.*$`),
		lineComment: "//",
	},
}

// ParseContext extracts imports from the prefix and function signatures from
// the suffix. Unknown languages yield an empty context.
func ParseContext(lang, prefix, suffix string) FileContext {
	fc := FileContext{Symbols: map[string]int{}}
	rules, ok := languages[strings.ToLower(lang)]
	if !ok {
		return fc
	}

	for _, line := range strings.Split(prefix, "\n") {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			continue
		}
		if rules.importRe.MatchString(trimmed) {
			fc.Imports = append(fc.Imports, trimmed)
			fc.Symbols["import"]++
		}
		if rules.signatureRe.MatchString(trimmed) {
			fc.Symbols["function"]++
		}
		if rules.lineComment != "" && strings.HasPrefix(strings.TrimSpace(trimmed), rules.lineComment) {
			fc.Symbols["comment"]++
		}
	}

	for _, line := range strings.Split(suffix, "\n") {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			continue
		}
		if rules.signatureRe.MatchString(trimmed) {
			fc.Signatures = append(fc.Signatures, trimmed)
			fc.Symbols["function"]++
		}
	}

	return fc
}

// TruncateToEnclosingScope cuts an indentation-scoped suffix at the first
// line that opens a new top-level definition, so the model only sees the
// remainder of the scope the cursor is in. Languages without indentation
// scoping return the suffix unchanged.
func TruncateToEnclosingScope(lang, suffix string) string {
	rules, ok := languages[strings.ToLower(lang)]
	if !ok || !rules.scoped {
		return suffix
	}
	lines := strings.Split(suffix, "\n")
	for i, line := range lines {
		if i == 0 {
			continue // cursor line may be mid-statement
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
		if !indented && (strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "class ") || strings.HasPrefix(trimmed, "@")) {
			return strings.Join(lines[:i], "\n")
		}
	}
	return suffix
}

// commentHeader produces a one-line file identifier in the language's comment
// syntax. Unknown languages get no header.
func commentHeader(lang, fileName string) string {
	rules, ok := languages[strings.ToLower(lang)]
	if !ok || fileName == "" {
		return ""
	}
	marker := rules.lineComment
	if marker == "" {
		marker = "//"
	}
	return marker + " file: " + fileName + " (" + strings.ToLower(lang) + ")\n"
}
