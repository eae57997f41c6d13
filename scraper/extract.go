package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/basket/models"
	"github.com/use-agent/basket/source"
)

// extraction is the outcome of reading one listing snapshot.
type extraction struct {
	Products []models.Product
	// Candidates is the number of item nodes, Dropped how many of them had
	// no name or no parseable price.
	Candidates int
	Dropped    int
}

// extractProducts reads every item node of html with the adapter's field
// selectors. Image URLs are resolved against pageURL.
func extractProducts(html string, a source.Adapter, pageURL string) (extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return extraction{}, err
	}
	base, _ := url.Parse(pageURL)

	var ex extraction
	doc.Find(a.Item).Each(func(_ int, item *goquery.Selection) {
		ex.Candidates++
		p, ok := readProduct(item, a.Fields, base)
		if !ok {
			ex.Dropped++
			return
		}
		ex.Products = append(ex.Products, p)
	})
	if ex.Products == nil {
		ex.Products = []models.Product{}
	}
	return ex, nil
}

func readProduct(item *goquery.Selection, f source.Fields, base *url.URL) (models.Product, bool) {
	name := text(item, f.Name)
	if name == "" {
		return models.Product{}, false
	}
	price, err := ParsePrice(text(item, f.Price))
	if err != nil {
		return models.Product{}, false
	}
	return models.Product{
		Name:  name,
		Price: price,
		Image: optional(imageURL(item, f.Image, base)),
		Unit:  optional(text(item, f.Unit)),
	}, true
}

// text returns the whitespace-normalized text of the first match of sel.
func text(item *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	return strings.Join(strings.Fields(item.Find(sel).First().Text()), " ")
}

// imageURL reads src, falling back to data-src for lazy-loaded images and
// skipping inline data: placeholders.
func imageURL(item *goquery.Selection, sel string, base *url.URL) string {
	if sel == "" {
		return ""
	}
	img := item.Find(sel).First()
	if img.Length() == 0 {
		return ""
	}

	var raw string
	for _, attr := range []string{"src", "data-src"} {
		v := strings.TrimSpace(img.AttrOr(attr, ""))
		if v != "" && !strings.HasPrefix(v, "data:") {
			raw = v
			break
		}
	}
	if raw == "" || base == nil {
		return raw
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
