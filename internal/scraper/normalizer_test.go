package scraper

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1234.56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"€ 1.234,56", "1234.56"},
		{"$1,234.56", "1234.56"},
		{"1 234,56 zł", "1234.56"},
		{"1'234.50 CHF", "1234.5"},
		{"12,99", "12.99"},
		{"12.99", "12.99"},
		{"1.234", "1234"},
		{"1,234", "1234"},
		{"0.125", "0.13"},
		{"1.234.567", "1234567"},
		{"1.234.567,89", "1234567.89"},
		{"₩ 35,000", "35000"},
		{"45,-", "45"},
		{"R$ 99,90", "99.9"},
		{"12 345 678,90 €", "12345678.9"},
		{"Price: 1.234,56.", "1234.56"},
		{"EUR 1.234,-", "1234"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParsePrice_LocaleEquivalence(t *testing.T) {
	// the same amount written in different locales parses to the same value
	pairs := [][2]string{
		{"1.234,56", "1,234.56"},
		{"€ 9.999,00", "$9,999.00"},
		{"12 345,67", "12,345.67"},
	}
	for _, p := range pairs {
		a, err := ParsePrice(p[0])
		require.NoError(t, err)
		b, err := ParsePrice(p[1])
		require.NoError(t, err)
		assert.True(t, a.Equal(b), "%s != %s", p[0], p[1])
	}
}

func TestParsePrice_Invalid(t *testing.T) {
	inputs := []string{
		"", "call for price", "-12.00", "...",
		"€12 - €15",
		"Was 19,99 now 14,99",
		"3 for 10",
		"2 x 9,99",
		"€.99",
		"12 34",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePrice(input)
			var ppe *PriceParseError
			assert.True(t, errors.As(err, &ppe))
		})
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer("cdn-dummy.test")

	raw := RawFields{
		FieldName:        "  Gold\n  Ring  ",
		FieldDescription: "Hand   made",
		FieldPrice:       "€ 1.299,00",
		FieldImage:       "/img/ring.jpg#zoom",
		FieldSKU:         " GR-18 ",
	}

	norm, warnings := n.Normalize(raw, "https://shop.test/p/ring?ref=list#top", "USD")
	assert.Empty(t, warnings)
	assert.Equal(t, "Gold Ring", norm.Name)
	assert.Equal(t, "Hand made", norm.Description)
	assert.Equal(t, "GR-18", norm.SKU)
	assert.Equal(t, "EUR", norm.Currency)
	require.NotNil(t, norm.Price)
	assert.True(t, decimal.RequireFromString("1299").Equal(*norm.Price))
	assert.Equal(t, "https://shop.test/img/ring.jpg", norm.ImageURL)
	assert.Equal(t, "https://shop.test/p/ring?ref=list", norm.SourceURL)
}

func TestNormalizer_Warnings(t *testing.T) {
	n := NewNormalizer()

	raw := RawFields{
		FieldName:  "Ring",
		FieldPrice: "sold out",
		FieldImage: "https://placehold.co/600x400",
	}

	norm, warnings := n.Normalize(raw, "https://shop.test/p/1", "krw")
	assert.Len(t, warnings, 2)
	assert.Nil(t, norm.Price)
	assert.Empty(t, norm.ImageURL)
	assert.Equal(t, "KRW", norm.Currency)
}

func TestNormalizer_CurrencyPrecedence(t *testing.T) {
	n := NewNormalizer()

	norm, _ := n.Normalize(RawFields{FieldName: "x", FieldPrice: "£10", FieldCurrency: "chf"}, "https://s.test/", "USD")
	assert.Equal(t, "CHF", norm.Currency)

	norm, _ = n.Normalize(RawFields{FieldName: "x", FieldPrice: "£10"}, "https://s.test/", "USD")
	assert.Equal(t, "GBP", norm.Currency)

	norm, _ = n.Normalize(RawFields{FieldName: "x", FieldPrice: "10"}, "https://s.test/", "USD")
	assert.Equal(t, "USD", norm.Currency)
}

func TestNormalizer_ResolveURL(t *testing.T) {
	n := NewNormalizer("images.fake.test")

	tests := []struct {
		name string
		base string
		ref  string
		want string
		ok   bool
	}{
		{"Relative path", "https://shop.test/a/b", "../c.jpg", "https://shop.test/c.jpg", true},
		{"Protocol relative", "https://shop.test/", "//cdn.shop.test/x.png", "https://cdn.shop.test/x.png", true},
		{"Absolute", "https://shop.test/", "http://other.test/y", "http://other.test/y", true},
		{"Placeholder domain", "https://shop.test/", "https://example.com/img.png", "", false},
		{"Placeholder subdomain", "https://shop.test/", "https://img.example.com/a.png", "", false},
		{"Extra placeholder", "https://shop.test/", "https://images.fake.test/a.png", "", false},
		{"Data uri", "https://shop.test/", "data:image/png;base64,AAAA", "", false},
		{"Mailto", "https://shop.test/", "mailto:a@b.test", "", false},
		{"Empty", "https://shop.test/", "  ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.ResolveURL(tt.base, tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
