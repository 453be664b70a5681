package accounts

import (
	"net/url"
	"strings"
)

// BuildM3U constructs the playlist URL for a set of credentials. It is a
// pure function of its three inputs and must be recomputed, never patched,
// whenever any of them changes.
func BuildM3U(streamBase, username, password string) string {
	streamBase = strings.TrimSuffix(strings.TrimSpace(streamBase), "/")
	if streamBase == "" || username == "" || password == "" {
		return ""
	}
	return streamBase + "/get.php?username=" + url.QueryEscape(username) +
		"&password=" + url.QueryEscape(password) + "&type=m3u_plus&output=ts"
}
