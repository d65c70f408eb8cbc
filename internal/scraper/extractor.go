package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract pulls profile fields out of html. Each field's selector chain is tried
// in order and the first non-empty value wins. A missing name yields
// ErrExtractionMiss together with whatever optional fields did match.
func Extract(html string, profile *Profile) (RawFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return extractFromDocument(doc, profile.Fields)
}

func extractFromDocument(doc *goquery.Document, fields map[string][]Selector) (RawFields, error) {
	raw := make(RawFields, len(fields))
	for field, chain := range fields {
		if value := firstMatch(doc.Selection, chain); value != "" {
			raw[field] = value
		}
	}
	if raw[FieldName] == "" {
		return raw, fmt.Errorf("%w: %s", ErrExtractionMiss, FieldName)
	}
	return raw, nil
}

func firstMatch(root *goquery.Selection, chain []Selector) string {
	for _, sel := range chain {
		var value string
		root.Find(sel.CSS).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value = selectionValue(s, sel.Attr)
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func selectionValue(s *goquery.Selection, attr string) string {
	if attr == "" {
		return strings.TrimSpace(s.Text())
	}
	v, ok := s.Attr(attr)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// ExtractLinks returns the link targets matched by the first selector of chain
// that matches anything, de-duplicated in document order. Attr defaults to href.
func ExtractLinks(html string, chain []Selector) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return linksFromDocument(doc, chain), nil
}

func linksFromDocument(doc *goquery.Document, chain []Selector) []string {
	for _, sel := range chain {
		attr := sel.Attr
		if attr == "" {
			attr = "href"
		}
		seen := make(map[string]bool)
		var links []string
		doc.Find(sel.CSS).Each(func(_ int, s *goquery.Selection) {
			v := selectionValue(s, attr)
			if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(strings.ToLower(v), "javascript:") {
				return
			}
			if !seen[v] {
				seen[v] = true
				links = append(links, v)
			}
		})
		if len(links) > 0 {
			return links
		}
	}
	return nil
}
