package aggregator

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const domainUnknown = "unknown"

// RegistrableDomain extracts the registrable domain of a URL, keeping any
// subdomain (http://mail.google.com/x yields "mail.google.com"). Hosts
// without a recognized public suffix, such as IPs or intranet names, are
// kept verbatim. Extraction never fails: malformed input yields "unknown".
func RegistrableDomain(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return domainUnknown
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Hostname() == "" {
		// Schemeless input like "mail.google.com/x" parses as a bare path
		u, err = url.Parse("//" + trimmed)
		if err != nil || u.Hostname() == "" {
			return domainUnknown
		}
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return domainUnknown
	}

	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	if sub := strings.TrimSuffix(strings.TrimSuffix(host, etld1), "."); sub != "" {
		return sub + "." + etld1
	}
	return etld1
}
