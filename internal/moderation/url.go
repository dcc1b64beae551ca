package moderation

import (
	"net/url"
	"strings"
	"unicode"
)

// isAbsoluteURI reports whether tok is a well-formed absolute URI: a valid
// scheme followed by an authority ("http://host/...") or an opaque part
// ("mailto:a@b"). Tokens carrying whitespace, control characters or a
// backslash are rejected, as are bare "scheme:" and "scheme://" tokens.
func isAbsoluteURI(tok string) bool {
	if tok == "" || strings.ContainsAny(tok, `\<>"{}|^`+"`") {
		return false
	}
	for _, r := range tok {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}

	u, err := url.Parse(tok)
	if err != nil || u.Scheme == "" {
		return false
	}
	if u.Host != "" {
		return true
	}
	// An empty authority ("file:///tmp/x") needs a path to be well formed.
	if strings.HasPrefix(tok[len(u.Scheme)+1:], "//") {
		return u.Path != "" && u.Path != "/"
	}
	return u.Opaque != ""
}
