package postprocess

import (
	"math"
	"regexp"
)

// redactPII replaces emails, IP addresses and credential-shaped strings with
// fixed placeholders. Placeholders never re-match, so the transform is
// idempotent.
type redactPII struct{}

func (redactPII) Name() string { return "redact_pii" }

const (
	emailPlaceholder  = "[redacted-email]"
	ipPlaceholder     = "[redacted-ip]"
	secretPlaceholder = "[redacted-secret]"
)

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	ipv4Re  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`)
	ipv6Re  = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){3,7}[0-9a-fA-F]{1,4}\b`)

	secretRes = []*regexp.Regexp{
		regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
		regexp.MustCompile(`sk_live_[A-Za-z0-9]{24,}`),
		regexp.MustCompile(`glpat-[A-Za-z0-9_-]{20,}`),
		regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		regexp.MustCompile(`(?:postgres|postgresql|mysql|mongodb|redis|amqp)://[^\s"']*:[^\s"'@]*@[^\s"']+`),
	}

	// Candidates for entropy scoring: long unbroken base64-ish runs.
	entropyCandidateRe = regexp.MustCompile(`\b[A-Za-z0-9+/=_-]{40,}\b`)
)

const entropyThreshold = 4.5

func (redactPII) Apply(completion string, _ Context) string {
	for _, re := range secretRes {
		completion = re.ReplaceAllString(completion, secretPlaceholder)
	}
	completion = entropyCandidateRe.ReplaceAllStringFunc(completion, func(s string) string {
		if shannonEntropy(s) >= entropyThreshold {
			return secretPlaceholder
		}
		return s
	})
	completion = emailRe.ReplaceAllString(completion, emailPlaceholder)
	completion = ipv6Re.ReplaceAllString(completion, ipPlaceholder)
	completion = ipv4Re.ReplaceAllString(completion, ipPlaceholder)
	return completion
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	total := float64(len(s))
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
