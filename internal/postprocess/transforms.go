package postprocess

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// stripCodeFences removes markdown code-fence lines the model sometimes wraps
// completions in. The surviving text is the fence body.
type stripCodeFences struct{}

func (stripCodeFences) Name() string { return "strip_code_fences" }

var fenceLineRe = regexp.MustCompile("(?m)^```[A-Za-z0-9_+#./-]*[ \t]*\r?\n?")

func (stripCodeFences) Apply(completion string, _ Context) string {
	return fenceLineRe.ReplaceAllString(completion, "")
}

// newlineAfterComment inserts a line break when the cursor sits inside an
// unclosed comment but the model continued with code on the same line.
type newlineAfterComment struct{}

func (newlineAfterComment) Name() string { return "newline_after_comment" }

var commentPrefixes = []string{"//", "#", "--", "/*", "*", "<!--"}

func (newlineAfterComment) Apply(completion string, pctx Context) string {
	if completion == "" || strings.HasPrefix(completion, "\n") {
		return completion
	}
	idx := strings.LastIndexByte(pctx.Prefix, '\n')
	lastLine := strings.TrimSpace(pctx.Prefix[idx+1:])
	if lastLine == "" {
		return completion
	}
	inComment := false
	for _, marker := range commentPrefixes {
		if strings.HasPrefix(lastLine, marker) {
			inComment = true
			break
		}
	}
	if !inComment || strings.Contains(lastLine, "*/") {
		return completion
	}
	// If the first completion line itself reads as a comment the model is
	// continuing the prose and no break is needed.
	first := completion
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	first = strings.TrimSpace(first)
	for _, marker := range commentPrefixes {
		if strings.HasPrefix(first, marker) {
			return completion
		}
	}
	return "\n" + completion
}

// removeReflection drops the tail of a completion when it repeats the code
// that already follows the cursor.
type removeReflection struct{}

func (removeReflection) Name() string { return "remove_reflection" }

const minReflection = 4

func (removeReflection) Apply(completion string, pctx Context) string {
	suffix := strings.TrimLeft(pctx.Suffix, " \t\n")
	if suffix == "" {
		return completion
	}
	for {
		max := len(completion)
		if len(suffix) < max {
			max = len(suffix)
		}
		trimmed := false
		for l := max; l >= minReflection; l-- {
			if strings.HasSuffix(completion, suffix[:l]) {
				completion = completion[:len(completion)-l]
				trimmed = true
				break
			}
		}
		if !trimmed {
			return completion
		}
	}
}

// stripAsteriskBanner removes decorative asterisk divider lines.
type stripAsteriskBanner struct{}

func (stripAsteriskBanner) Name() string { return "strip_asterisk_banner" }

var bannerRe = regexp.MustCompile(`(?m)^[ \t]*\*{3,}[ \t]*\r?\n?`)

func (stripAsteriskBanner) Apply(completion string, _ Context) string {
	return bannerRe.ReplaceAllString(completion, "")
}

// sanitizeURLs rewrites URLs in JSON and YAML output so schema references can
// only point at known hosts over https.
type sanitizeURLs struct{}

func (sanitizeURLs) Name() string { return "sanitize_urls" }

const urlPlaceholder = "https://example.invalid"

var schemaLangs = map[string]struct{}{"json": {}, "yaml": {}, "yml": {}}

var allowedURLHosts = map[string]struct{}{
	"json-schema.org":      {},
	"json.schemastore.org": {},
	"www.schemastore.org":  {},
	"yaml.org":             {},
	"gitlab.com":           {},
	"docs.gitlab.com":      {},
}

var urlRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.-]*://[^\s"'<>\\]+`)

func (sanitizeURLs) Apply(completion string, pctx Context) string {
	if _, ok := schemaLangs[strings.ToLower(pctx.Lang)]; !ok {
		return completion
	}
	return urlRe.ReplaceAllStringFunc(completion, func(raw string) string {
		if raw == urlPlaceholder {
			return raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme != "https" {
			return urlPlaceholder
		}
		host := u.Hostname()
		if host == "" || isPrivateHost(host) {
			return urlPlaceholder
		}
		if _, ok := allowedURLHosts[strings.ToLower(host)]; !ok {
			return urlPlaceholder
		}
		return raw
	})
}

func isPrivateHost(host string) bool {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".local") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// trimWhitespace strips trailing spaces and tabs from every line and trailing
// blank lines from the completion. Leading indentation is preserved.
type trimWhitespace struct{}

func (trimWhitespace) Name() string { return "trim_whitespace" }

var trailingSpaceRe = regexp.MustCompile(`(?m)[ \t]+$`)

func (trimWhitespace) Apply(completion string, _ Context) string {
	completion = trailingSpaceRe.ReplaceAllString(completion, "")
	return strings.TrimRight(completion, "\n")
}
