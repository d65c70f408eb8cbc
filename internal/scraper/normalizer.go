package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// DefaultPlaceholderDomains are never allowed into stored URLs. Subdomains match too.
var DefaultPlaceholderDomains = []string{
	"example.com",
	"example.org",
	"example.net",
	"placeholder.com",
	"placehold.co",
	"placehold.it",
	"dummyimage.com",
	"localhost",
}

var currencySymbols = []struct {
	symbol string
	code   string
}{
	// multi-rune symbols first so "R$" wins over "$"
	{"R$", "BRL"},
	{"US$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₩", "KRW"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"zł", "PLN"},
	{"$", "USD"},
}

// Normalizer cleans extracted fields.
type Normalizer struct {
	placeholders []string
}

// NewNormalizer returns a normalizer rejecting the default placeholder domains
// plus any extra ones.
func NewNormalizer(extraPlaceholders ...string) *Normalizer {
	domains := make([]string, 0, len(DefaultPlaceholderDomains)+len(extraPlaceholders))
	domains = append(domains, DefaultPlaceholderDomains...)
	for _, d := range extraPlaceholders {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	return &Normalizer{placeholders: domains}
}

// Normalize converts raw fields into a Normalized record. Recoverable problems
// (bad price, rejected URL) come back as warnings with the field left empty.
func (n *Normalizer) Normalize(raw RawFields, pageURL, defaultCurrency string) (Normalized, []string) {
	var warnings []string
	out := Normalized{
		Name:        CleanText(raw[FieldName]),
		Description: CleanText(raw[FieldDescription]),
		SKU:         CleanText(raw[FieldSKU]),
	}

	if src, ok := n.ResolveURL(pageURL, pageURL); ok {
		out.SourceURL = src
	}

	if rawPrice := strings.TrimSpace(raw[FieldPrice]); rawPrice != "" {
		price, err := ParsePrice(rawPrice)
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			out.Price = &price
		}
	}

	out.Currency = normalizeCurrency(raw[FieldCurrency])
	if out.Currency == "" {
		out.Currency = currencyFromSymbol(raw[FieldPrice])
	}
	if out.Currency == "" {
		out.Currency = normalizeCurrency(defaultCurrency)
	}

	if rawImage := strings.TrimSpace(raw[FieldImage]); rawImage != "" {
		if img, ok := n.ResolveURL(pageURL, rawImage); ok {
			out.ImageURL = img
		} else {
			warnings = append(warnings, "image url rejected: "+rawImage)
		}
	}

	return out, warnings
}

// CleanText trims and collapses internal whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL resolves ref against base and rejects non-http(s) targets and
// placeholder domains.
func (n *Normalizer) ResolveURL(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != "" {
		if baseURL, err := url.Parse(base); err == nil {
			refURL = baseURL.ResolveReference(refURL)
		}
	}
	if refURL.Scheme != "http" && refURL.Scheme != "https" {
		return "", false
	}
	if n.IsPlaceholder(refURL.Hostname()) {
		return "", false
	}
	refURL.Fragment = ""
	return refURL.String(), true
}

// IsPlaceholder reports whether host is, or is a subdomain of, a placeholder domain.
func (n *Normalizer) IsPlaceholder(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return true
	}
	for _, d := range n.placeholders {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ParsePrice parses locale-formatted prices: "1.234,56", "1,234.56", "€ 12,99",
// "1 234,56", "1.234,-". The decimal separator is the last '.' or ','; a single
// separator followed by exactly three digits is read as a thousands separator.
// The input must hold exactly one number: ranges and "was / now" pairs are
// rejected rather than merged. Results are rounded to two places.
func ParsePrice(s string) (decimal.Decimal, error) {
	input := s
	runs, err := priceRuns(s)
	if err != nil {
		return decimal.Decimal{}, &PriceParseError{Input: input, Err: err}
	}
	switch len(runs) {
	case 0:
		return decimal.Decimal{}, &PriceParseError{Input: input}
	case 1:
	default:
		return decimal.Decimal{}, &PriceParseError{Input: input, Err: fmt.Errorf("%d numbers in price", len(runs))}
	}

	clean := strings.TrimRight(runs[0], ".,")
	if clean == "" {
		return decimal.Decimal{}, &PriceParseError{Input: input}
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")

	var normalized string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			normalized = strings.ReplaceAll(clean, ".", "")
			normalized = strings.Replace(normalized, ",", ".", 1)
		} else {
			normalized = strings.ReplaceAll(clean, ",", "")
		}
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		intPart := clean[:idx]
		frac := clean[idx+1:]
		if strings.Count(clean, sep) > 1 || (len(frac) == 3 && intPart != "0" && intPart != "") {
			normalized = strings.ReplaceAll(clean, sep, "")
		} else {
			normalized = strings.Replace(clean, sep, ".", 1)
		}
	default:
		normalized = clean
	}

	if strings.Count(normalized, ".") > 1 {
		return decimal.Decimal{}, &PriceParseError{Input: input, Err: errors.New("ambiguous separators")}
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, &PriceParseError{Input: input, Err: err}
	}
	return d.Round(2), nil
}

// priceRuns splits s into numeric runs. Spaces and apostrophes only group
// digits when exactly three digits follow; anything else ends the run.
func priceRuns(s string) ([]string, error) {
	rs := []rune(s)
	var runs []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, string(cur))
			cur = nil
		}
	}

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case isDigit(r):
			cur = append(cur, r)
		case r == '.' || r == ',':
			if len(cur) == 0 {
				if i+1 < len(rs) && isDigit(rs[i+1]) {
					return nil, errors.New("number starts with a separator")
				}
				continue
			}
			cur = append(cur, r)
		case r == '-' || r == '–':
			if len(cur) == 0 {
				if len(runs) == 0 && numberFollows(rs, i+1) {
					return nil, errors.New("negative price")
				}
				continue
			}
			// "45,-" : 센트 없음
			flush()
		case unicode.IsSpace(r), r == '\'', r == '’':
			if len(cur) > 0 && isDigit(cur[len(cur)-1]) && digitGroupAt(rs, i+1) {
				continue
			}
			flush()
		default:
			flush()
		}
	}
	flush()
	return runs, nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// digitGroupAt reports whether rs[i:] starts with exactly three digits.
func digitGroupAt(rs []rune, i int) bool {
	if i+3 > len(rs) {
		return false
	}
	for _, r := range rs[i : i+3] {
		if !isDigit(r) {
			return false
		}
	}
	return i+3 == len(rs) || !isDigit(rs[i+3])
}

func numberFollows(rs []rune, i int) bool {
	for ; i < len(rs); i++ {
		if unicode.IsSpace(rs[i]) {
			continue
		}
		return isDigit(rs[i]) || rs[i] == '.' || rs[i] == ','
	}
	return false
}

func normalizeCurrency(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if code := currencyFromSymbol(s); code != "" && len([]rune(s)) <= 4 {
		return code
	}
	s = strings.ToUpper(s)
	if isCurrencyCode(s) {
		return s
	}
	return ""
}

func currencyFromSymbol(s string) string {
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			return cs.code
		}
	}
	upper := strings.ToUpper(s)
	for _, code := range []string{"EUR", "USD", "GBP", "KRW", "BRL", "JPY", "CHF", "PLN", "INR"} {
		if strings.Contains(upper, code) {
			return code
		}
	}
	return ""
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
