package extract

import (
	"net/url"
	"strings"
)

// ParseURL returns URLContent for raw, or GenericText when no host can be
// found in it.
func ParseURL(raw string) Payload {
	target := strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(target), "http") {
		// "visit www.example.com today": take the www token and assume https
		for _, field := range strings.Fields(target) {
			if strings.Contains(strings.ToLower(field), "www.") {
				target = "https://" + field[strings.Index(strings.ToLower(field), "www."):]
				break
			}
		}
	}

	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return ParseGeneric(raw)
	}
	return URLContent{
		URL:    target,
		Domain: u.Hostname(),
	}
}
