package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_FixedOrderAndValid(t *testing.T) {
	adapters := All()

	ids := make([]ID, len(adapters))
	for i, a := range adapters {
		ids[i] = a.ID
	}
	assert.Equal(t, []ID{Rewe, Lidl, Aldi, Penny}, ids)
	require.NoError(t, ValidateAll(adapters))
}

func TestAdapter_URL(t *testing.T) {
	tests := []struct {
		id    ID
		query string
		want  string
	}{
		{Rewe, "milch", "https://shop.rewe.de/search/milch"},
		{Rewe, "bio milch/1l", "https://shop.rewe.de/search/bio%20milch%2F1l"},
		{Lidl, "salt & pepper", "https://www.lidl.de/suche?query=salt%20%26%20pepper"},
		{Aldi, "käse", "https://www.aldi-sued.de/de/produkte/produktsuche.html?search=k%C3%A4se"},
		{Penny, "a+b", "https://www.penny.de/suche?q=a%2Bb"},
	}
	for _, tt := range tests {
		t.Run(string(tt.id)+"/"+tt.query, func(t *testing.T) {
			a, ok := Lookup(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.want, a.URL(tt.query))
		})
	}
}

func TestAdapter_Validate(t *testing.T) {
	valid := rewe

	noPlaceholder := valid
	noPlaceholder.URLTemplate = "https://shop.rewe.de/search/"
	assert.ErrorContains(t, noPlaceholder.Validate(), "placeholder")

	badSelector := valid
	badSelector.Fields.Price = "[data-testid="
	assert.ErrorContains(t, badSelector.Validate(), "price selector")

	missingItem := valid
	missingItem.Item = ""
	assert.ErrorContains(t, missingItem.Validate(), "item selector is required")

	noConsent := valid
	noConsent.Consent = ""
	assert.NoError(t, noConsent.Validate(), "consent selector is optional")
}

func TestValidateAll_RejectsDuplicates(t *testing.T) {
	err := ValidateAll([]Adapter{rewe, rewe})
	assert.ErrorContains(t, err, "duplicate source id rewe")

	assert.Error(t, ValidateAll(nil))
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := Lookup("edeka")
	assert.False(t, ok)
}
