package source

import "errors"

// Source ids. These are the fixed keys of every aggregate result.
const (
	Rewe  ID = "rewe"
	Lidl  ID = "lidl"
	Aldi  ID = "aldi"
	Penny ID = "penny"
)

var (
	rewe = Adapter{
		ID:          Rewe,
		Name:        "REWE",
		URLTemplate: "https://shop.rewe.de/search/" + QueryPlaceholder,
		Consent:     "#uc-btn-accept-banner",
		Ready:       `[data-testid="product-card"]`,
		Item:        `[data-testid="product-card"]`,
		Fields: Fields{
			Name:  `[data-testid="product-title"]`,
			Price: `[data-testid="product-price"]`,
			Image: "img",
			Unit:  `[data-testid="product-grammage"]`,
		},
	}

	lidl = Adapter{
		ID:          Lidl,
		Name:        "Lidl",
		URLTemplate: "https://www.lidl.de/suche?query=" + QueryPlaceholder,
		Consent:     "#onetrust-accept-btn-handler",
		Ready:       ".product__grid-card",
		Item:        ".product__grid-card",
		Fields: Fields{
			Name:  ".product__title",
			Price: ".price__amount",
			Image: ".product__image img",
			Unit:  ".price__unit",
		},
	}

	aldi = Adapter{
		ID:          Aldi,
		Name:        "ALDI SÜD",
		URLTemplate: "https://www.aldi-sued.de/de/produkte/produktsuche.html?search=" + QueryPlaceholder,
		Consent:     ".js-cookie-accept-all",
		Ready:       ".product-tile",
		Item:        ".product-tile",
		Fields: Fields{
			Name:  ".product-tile__title",
			Price: ".price__main",
			Image: ".product-tile__image img",
			Unit:  ".price__basic",
		},
	}

	penny = Adapter{
		ID:          Penny,
		Name:        "PENNY",
		URLTemplate: "https://www.penny.de/suche?q=" + QueryPlaceholder,
		Consent:     "#onetrust-accept-btn-handler",
		Ready:       ".penny-product-tile",
		Item:        ".penny-product-tile",
		Fields: Fields{
			Name:  ".penny-product-tile__title",
			Price: ".penny-product-tile__price-main",
			Image: ".penny-product-tile__image img",
			Unit:  ".penny-product-tile__price-basic",
		},
	}
)

// All returns the built-in adapters in a fixed order.
func All() []Adapter {
	return []Adapter{rewe, lidl, aldi, penny}
}

// Lookup returns the built-in adapter with the given id.
func Lookup(id ID) (Adapter, bool) {
	for _, a := range All() {
		if a.ID == id {
			return a, true
		}
	}
	return Adapter{}, false
}

// ValidateAll validates every adapter and rejects duplicate ids.
func ValidateAll(adapters []Adapter) error {
	if len(adapters) == 0 {
		return errors.New("no sources configured")
	}
	var errs []error
	seen := make(map[ID]struct{}, len(adapters))
	for _, a := range adapters {
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[a.ID]; dup {
			errs = append(errs, errors.New("duplicate source id "+string(a.ID)))
		}
		seen[a.ID] = struct{}{}
	}
	return errors.Join(errs...)
}
