// Package pathutil collapses request paths into route templates so metric
// labels stay bounded.
package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern maps a dynamic route to its label template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// 上から順に評価する
var pathPatterns = []*PathPattern{
	{Pattern: regexp.MustCompile(`^/deliveries/stats$`), Template: "/deliveries/stats"},
	{Pattern: regexp.MustCompile(`^/deliveries/[^/]+$`), Template: "/deliveries/:messageId"},
	{Pattern: regexp.MustCompile(`^/deliveries/[^/]+/resend$`), Template: "/deliveries/:messageId/resend"},
	{Pattern: regexp.MustCompile(`^/webhooks/(sms|email)$`), Template: "/webhooks/$1"},
	{Pattern: regexp.MustCompile(`^/webhooks/[^/]+$`), Template: "/webhooks/:provider"},
	{Pattern: regexp.MustCompile(`^/swagger/.*$`), Template: "/swagger/*"},
}

// NormalizePath strips the query and trailing slash and replaces message
// ids and unknown providers with placeholders. Paths that match no
// pattern come back unchanged.
//
//	NormalizePath("/deliveries/5d0c...")  // "/deliveries/:messageId"
//	NormalizePath("/webhooks/sms")        // "/webhooks/sms"
//	NormalizePath("/webhooks/whatsapp")   // "/webhooks/:provider"
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	for _, p := range pathPatterns {
		if loc := p.Pattern.FindStringSubmatchIndex(path); loc != nil {
			return string(p.Pattern.ExpandString(nil, p.Template, path, loc))
		}
	}
	return path
}
