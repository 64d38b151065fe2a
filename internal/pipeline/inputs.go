package pipeline

import (
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ParseInputRefs turns a newline/comma-separated list into a slice of
// fetchable input references. Sharing links are normalized to direct form
// first; tokens that are not absolute http(s) URLs are silently dropped.
func ParseInputRefs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})

	var refs []string
	for _, f := range fields {
		token := strings.TrimSpace(f)
		if token == "" {
			continue
		}
		token = NormalizeShareURL(token)
		u, err := url.Parse(token)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			zap.L().Debug("inputs: dropping non-url token", zap.String("token", token))
			continue
		}
		refs = append(refs, token)
	}
	return refs
}

// NormalizeShareURL converts a Dropbox sharing link into its
// direct-download form so the inference endpoint can fetch the media.
// Non-Dropbox references are returned unchanged.
func NormalizeShareURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	host := strings.ToLower(u.Host)
	if host != "www.dropbox.com" && host != "dropbox.com" {
		return ref
	}
	if !strings.HasPrefix(u.Path, "/s/") && !strings.HasPrefix(u.Path, "/scl/") {
		return ref
	}

	u.Host = "dl.dropboxusercontent.com"
	q := u.Query()
	q.Del("dl")
	u.RawQuery = q.Encode()
	return u.String()
}
