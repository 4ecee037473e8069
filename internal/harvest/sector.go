package harvest

import (
	"net/url"
	"strings"
)

// ClassifySector guesses the publishing sector from the URL host.
func ClassifySector(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return SectorUnknown
	}
	host := strings.ToLower(u.Host)
	switch {
	case strings.HasSuffix(host, ".gov") || strings.Contains(host, ".gov."):
		return "government"
	case strings.Contains(host, "health") || strings.Contains(host, "hhs"):
		return "health"
	case strings.Contains(host, "edu"):
		return "education"
	default:
		return SectorUnknown
	}
}
