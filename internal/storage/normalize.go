package storage

import (
	"net/url"
	"strings"
)

// trackingParams are stripped from canonical URLs. Two URLs differing only in
// these are the same page.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
	"fbclid", "gclid",
}

// NormalizeURL reduces a URL to its canonical form for duplicate detection:
// https scheme, no www. prefix, no tracking parameters, no trailing slash.
// The result of normalizing a normalized URL is itself.
//
// Unparseable input is returned unchanged; it still works as an exact-match
// dedup key.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = "https"
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	if q := u.Query(); len(q) > 0 {
		for _, p := range trackingParams {
			q.Del(p)
		}
		u.RawQuery = q.Encode()
	}
	if u.Path == "/" {
		u.Path = ""
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}
