// Package urlx extracts and normalizes URLs found in chat text.
package urlx

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// Slack wraps links as <https://example.com|label> or <https://example.com>.
	slackLinkPattern = regexp.MustCompile(`<(https?://[^|>]+)(?:\|[^>]+)?>`)
	schemeURLPattern = regexp.MustCompile(`https?://[^\s<>"']+`)
	// Bare domains must match a whole whitespace-delimited token.
	bareDomainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9][-a-zA-Z0-9]*\.)+[a-zA-Z]{2,}(?:/[^\s<>"']*)?$`)
)

// Extract returns the unique URLs found in text, in first-seen order.
// Slack link markup is unwrapped first, then explicit scheme://
// tokens, then bare domains (prefixed with https://). A bare domain is
// dropped when it already appears inside a collected URL.
func Extract(text string) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	for _, match := range slackLinkPattern.FindAllStringSubmatch(text, -1) {
		add(match[1])
	}
	clean := slackLinkPattern.ReplaceAllString(text, " ")

	for _, u := range schemeURLPattern.FindAllString(clean, -1) {
		add(u)
	}

	remainder := schemeURLPattern.ReplaceAllString(clean, " ")
	for _, token := range strings.Fields(remainder) {
		if !bareDomainPattern.MatchString(token) {
			continue
		}
		if containedInAny(token, urls) {
			continue
		}
		add("https://" + token)
	}
	return urls
}

func containedInAny(domain string, urls []string) bool {
	for _, u := range urls {
		if strings.Contains(u, domain) {
			return true
		}
	}
	return false
}

// Normalize trims the URL and forces an https:// prefix. Idempotent.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") {
		return "https://" + strings.TrimPrefix(raw, "http://")
	}
	if !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}

// Valid reports whether raw parses with a scheme and a non-empty host.
func Valid(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
