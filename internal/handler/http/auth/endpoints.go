package auth

import "strings"

// PublicEndpoints bypass JWT validation. Webhook callbacks carry an HMAC
// signature instead of a token.
var PublicEndpoints = []string{
	"/health",
	"/health/channels",
	"/metrics",
	"/swagger/",
	"/webhooks/",
}

// IsPublicEndpoint reports whether path needs no token. Entries ending in
// "/" match by prefix, others match exactly (a trailing slash is allowed).
func IsPublicEndpoint(path string) bool {
	for _, endpoint := range PublicEndpoints {
		if strings.HasSuffix(endpoint, "/") {
			if strings.HasPrefix(path, endpoint) {
				return true
			}
			continue
		}
		if path == endpoint || path == endpoint+"/" {
			return true
		}
	}
	return false
}
