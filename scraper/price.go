package scraper

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPrice is returned by ParsePrice for text that holds no usable
// amount. Candidates with such a price are dropped.
var ErrInvalidPrice = errors.New("invalid price")

var (
	// priceToken matches the first run of digits with embedded separators.
	priceToken = regexp.MustCompile(`-?\d[\d.,]*`)

	// thousandsOnly matches "1.299" or "12.345.678": dots as group separators.
	thousandsOnly = regexp.MustCompile(`^[1-9]\d{0,2}(\.\d{3})+$`)
)

// ParsePrice converts German shop price text into an amount.
//
//	"2,49 €"    -> 2.49
//	"€ 10,00"   -> 10
//	"1.299,00€" -> 1299
//	"1.299"     -> 1299
//	"0.99"      -> 0.99
//
// Both "." and "," present means "." groups thousands and "," is the decimal
// separator. A lone "," is always decimal. A lone "." is decimal unless every
// group after it has exactly three digits. Negative amounts are rejected.
func ParsePrice(text string) (float64, error) {
	s := strings.NewReplacer(
		"€", "",
		"EUR", "",
		"\u00a0", "",
		"\u202f", "",
		" ", "",
		"*", "",
	).Replace(text)

	token := priceToken.FindString(s)
	if token == "" {
		return 0, ErrInvalidPrice
	}
	if strings.HasPrefix(token, "-") {
		return 0, ErrInvalidPrice
	}
	token = strings.TrimRight(token, ".,")

	hasDot := strings.Contains(token, ".")
	hasComma := strings.Contains(token, ",")
	switch {
	case hasDot && hasComma:
		token = strings.ReplaceAll(token, ".", "")
		token = strings.Replace(token, ",", ".", 1)
	case hasComma:
		token = strings.Replace(token, ",", ".", 1)
	case hasDot && thousandsOnly.MatchString(token):
		token = strings.ReplaceAll(token, ".", "")
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, ErrInvalidPrice
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, ErrInvalidPrice
	}
	return v, nil
}
