package crawling

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/catalog-sync/internal/config"
)

// Listing is one catalog entry as it appears on the page.
type Listing struct {
	Title       string
	PriceText   string
	Description string
	Link        string
	Images      []string
	PhotoCount  int
}

// ExtractListings parses every element matching sel.Item and reads its
// fields with the remaining selectors. Relative links and image sources are
// resolved against baseURL.
func ExtractListings(htmlContent string, baseURL string, sel config.Selectors) ([]Listing, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ExtractionError{
			Message: "failed to parse base URL",
			Cause:   err,
		}
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, &ExtractionError{
			Message: fmt.Sprintf("invalid base URL: %s (must have scheme and host)", baseURL),
		}
	}
	if strings.TrimSpace(sel.Item) == "" {
		return nil, &ExtractionError{Message: "item selector is empty"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &ExtractionError{
			Message: "failed to parse HTML",
			Cause:   err,
		}
	}

	listings := make([]Listing, 0)
	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		l := Listing{
			Title:       textOf(item, sel.Title),
			PriceText:   textOf(item, sel.Price),
			Description: textOf(item, sel.Description),
		}
		// The title attribute carries the untruncated name on most catalogs.
		if sel.Title != "" {
			if attr, ok := item.Find(sel.Title).First().Attr("title"); ok && strings.TrimSpace(attr) != "" {
				l.Title = cleanWhitespace(attr)
			}
		}

		if sel.Link != "" {
			if href, ok := item.Find(sel.Link).First().Attr("href"); ok {
				l.Link = resolve(base, href)
			}
		}

		if sel.Image != "" {
			seen := make(map[string]bool)
			imgs := item.Find(sel.Image)
			l.PhotoCount = imgs.Length()
			imgs.Each(func(_ int, img *goquery.Selection) {
				src := img.AttrOr("src", "")
				if src == "" || strings.HasPrefix(src, "data:") {
					src = img.AttrOr("data-src", "")
				}
				abs := resolve(base, src)
				if abs == "" || seen[abs] {
					return
				}
				seen[abs] = true
				l.Images = append(l.Images, abs)
			})
		}

		listings = append(listings, l)
	})

	return listings, nil
}

func textOf(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return cleanWhitespace(item.Find(selector).First().Text())
}

// resolve returns href as an absolute http(s) URL without fragment, or ""
// when it cannot be resolved.
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "data:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// cleanWhitespace collapses runs of whitespace into single spaces.
func cleanWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ParsePrice splits raw price text into the price token and the stock flag.
// The price is the first space-separated token; an empty text yields "".
func ParsePrice(priceText string) (price string, outOfStock bool) {
	text := strings.TrimSpace(priceText)
	outOfStock = strings.Contains(strings.ToLower(text), "out of stock")
	if text == "" {
		return "", outOfStock
	}
	return strings.Split(text, " ")[0], outOfStock
}
