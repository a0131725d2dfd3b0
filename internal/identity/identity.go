// Package identity derives stable record IDs from natural keys so that every
// run assigns the same ID to the same seller or listing.
package identity

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Fixed namespaces. Changing either re-keys every stored row.
var (
	sellerNamespace  = uuid.MustParse("6f1c2a4e-3b8d-5e07-9a1f-2c4d6e8f0a1b")
	productNamespace = uuid.MustParse("b3e9d7c5-a1f2-5b4c-8d6e-0f1a2b3c4d5e")
)

// SellerID returns the deterministic seller ID for a catalogue URL.
func SellerID(catalogueURL string) uuid.UUID {
	return uuid.NewSHA1(sellerNamespace, []byte(NormalizeURL(catalogueURL)))
}

// ProductID returns the deterministic product ID. The link wins when present;
// otherwise the (title, catalogue URL) pair is used. Two unlinked listings with
// the same title in the same catalog collapse into one ID.
func ProductID(productLink, title, catalogueURL string) uuid.UUID {
	return uuid.NewSHA1(productNamespace, []byte(ProductKey(productLink, title, catalogueURL)))
}

// ProductKey is the normalized natural key a product ID is derived from.
func ProductKey(productLink, title, catalogueURL string) string {
	if link := NormalizeURL(productLink); link != "" {
		return "link:" + link
	}
	return TitleKey(title, catalogueURL)
}

// TitleKey is the fallback key for listings without a link.
func TitleKey(title, catalogueURL string) string {
	return "title:" + NormalizeTitle(title) + "\x00" + NormalizeURL(catalogueURL)
}

// NormalizeURL trims the URL, lowercases scheme and host and drops a trailing
// slash. Unparseable input is only trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return strings.TrimSuffix(u.String(), "/")
}

// NormalizeTitle trims and collapses internal whitespace. Case is kept.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
