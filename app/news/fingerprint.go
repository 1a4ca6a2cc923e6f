package news

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint identifies a logical article. It depends only on normalized
// content, never on the source or the fetch time, so it is stable across
// restarts and across sources carrying the same story.
func Fingerprint(title, link, body string) string {
	key := NormalizeTitle(title) + "|"
	if canonical := CanonicalURL(link); canonical != "" {
		key += canonical
	} else {
		key += NormalizeTitle(body)
	}

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ContentHash changes whenever the stored representation would change.
func ContentHash(a Article) string {
	content := a.Title + "\x00" + a.URL + "\x00" + a.Body

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// NormalizeTitle applies NFKC, case folding and whitespace collapsing.
func NormalizeTitle(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalURL reduces a link to host+path+query, ignoring scheme, "www.",
// default ports, fragments, trailing slashes and utm_* tracking parameters.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	query := u.Query()
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			query.Del(key)
		}
	}

	canonical := host + path
	if encoded := query.Encode(); encoded != "" {
		canonical += "?" + encoded
	}
	return canonical
}
