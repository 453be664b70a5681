package ratelimit

import "strings"

// ClientKey builds a limiter key for one client address. Requests without a
// resolvable address share the empty key, which limiters treat as exempt.
func ClientKey(clientIP string) string {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return ""
	}
	return "ip:" + clientIP
}
