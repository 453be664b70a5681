package panel

import (
	"net/url"
	"path"
	"strings"
)

// apiKeyParams lists the query parameter names panels use for the API key.
var apiKeyParams = []string{"api_key", "key", "apikey"}

// Verb synonym families tried in order against the panel.
var (
	createVerbs  = []string{"create", "add"}
	editVerbs    = []string{"edit", "update"}
	suspendVerbs = []string{"disable", "ban", "suspend"}
	renewVerbs   = []string{"renew", "extend", "edit", "update"}
	infoVerbs    = []string{"info", "get", "details"}
)

// commonScripts lists API entry scripts seen across panel installs.
var commonScripts = []string{"api.php", "reseller_api.php", "panel_api.php"}

// baseCandidates builds the ordered list of base URL shapes to try for a
// configured panel URL: the URL as-is, a directory-stripped variant, and
// common script filenames and subpaths under the origin. Construction is
// pure and cheap, so it is repeated on every call rather than cached.
func baseCandidates(raw string) []string {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if raw == "" {
		return nil
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, 8)
	add := func(candidate string) {
		candidate = strings.TrimSuffix(candidate, "/")
		if candidate == "" {
			return
		}
		if _, ok := seen[candidate]; ok {
			return
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}

	add(raw)

	parsed, errParse := url.Parse(raw)
	if errParse != nil || parsed.Scheme == "" || parsed.Host == "" {
		return out
	}
	origin := parsed.Scheme + "://" + parsed.Host

	// Directory-stripped variant: drop a script filename from the path.
	if base := path.Base(parsed.Path); strings.Contains(base, ".") {
		dir := strings.TrimSuffix(parsed.Path, base)
		add(origin + strings.TrimSuffix(dir, "/"))
	}

	for _, script := range commonScripts {
		add(origin + "/" + script)
	}
	add(origin + "/api")
	add(origin)

	return out
}
