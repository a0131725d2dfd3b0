package fetch

import (
	"net/url"
	"strings"
)

// Host identifies a known catalog host.
type Host string

const (
	// HostWhatsApp is a WhatsApp Business catalog (wa.me/c/... or web.whatsapp.com).
	HostWhatsApp Host = "whatsapp"
	// HostInstagram is an Instagram shop page.
	HostInstagram Host = "instagram"
	// HostFacebook is a Facebook shop or marketplace page.
	HostFacebook Host = "facebook"
	// HostUnknown is any other site.
	HostUnknown Host = "unknown"
)

// DetectHost identifies the catalog host from a URL.
func DetectHost(urlStr string) Host {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return HostUnknown
	}

	host := strings.ToLower(parsed.Hostname())

	switch {
	case host == "wa.me" || strings.HasSuffix(host, "whatsapp.com"):
		return HostWhatsApp
	case strings.HasSuffix(host, "instagram.com"):
		return HostInstagram
	case strings.HasSuffix(host, "facebook.com") || host == "fb.com":
		return HostFacebook
	}
	return HostUnknown
}

// RequiresBrowser reports whether catalogs on this host are only produced by
// client-side scripts.
func (h Host) RequiresBrowser() bool {
	switch h {
	case HostWhatsApp, HostInstagram, HostFacebook:
		return true
	}
	return false
}
