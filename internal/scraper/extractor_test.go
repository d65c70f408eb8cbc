package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productHTML = `<html><body>
<div class="product">
  <h2 class="legacy-title"></h2>
  <span class="title-alt">  Gold   Ring 18K </span>
  <span class="price" data-amount="1299.00">€ 1.299,00</span>
  <img class="hero" src="/img/ring.jpg">
  <p class="desc">Handmade <b>ring</b></p>
</div>
</body></html>`

func TestExtract_FallbackChain(t *testing.T) {
	profile := &Profile{
		Fields: map[string][]Selector{
			FieldName: {
				{CSS: "h1.product-title"},
				{CSS: "h2.legacy-title"},
				{CSS: ".title-alt"},
			},
			FieldPrice: {
				{CSS: ".price", Attr: "content"},
				{CSS: ".price"},
			},
			FieldImage:       {{CSS: "img.hero", Attr: "src"}},
			FieldDescription: {{CSS: "p.desc"}},
			FieldSKU:         {{CSS: "[itemprop=sku]"}},
		},
	}

	raw, err := Extract(productHTML, profile)
	require.NoError(t, err)

	// first two name selectors match nothing or only empty text; the third wins
	assert.Equal(t, "Gold   Ring 18K", raw[FieldName])
	assert.Equal(t, "€ 1.299,00", raw[FieldPrice])
	assert.Equal(t, "/img/ring.jpg", raw[FieldImage])
	assert.Equal(t, "Handmade ring", raw[FieldDescription])

	_, hasSKU := raw[FieldSKU]
	assert.False(t, hasSKU)
}

func TestExtract_MissingName(t *testing.T) {
	profile := &Profile{
		Fields: map[string][]Selector{
			FieldName:  {{CSS: "h1"}},
			FieldPrice: {{CSS: ".price"}},
		},
	}

	raw, err := Extract(productHTML, profile)
	assert.ErrorIs(t, err, ErrExtractionMiss)
	assert.Equal(t, "€ 1.299,00", raw[FieldPrice])
}

func TestExtractLinks(t *testing.T) {
	html := `<ul>
	  <li><a class="item" href="/p/1">One</a></li>
	  <li><a class="item" href="/p/2">Two</a></li>
	  <li><a class="item" href="/p/1">One again</a></li>
	  <li><a class="item" href="#top">Top</a></li>
	  <li><a class="item" href="javascript:void(0)">JS</a></li>
	  <li><div class="tile" data-href="/p/9"></div></li>
	</ul>`

	tests := []struct {
		name  string
		chain []Selector
		want  []string
	}{
		{
			name:  "Default href attribute",
			chain: []Selector{{CSS: "a.item"}},
			want:  []string{"/p/1", "/p/2"},
		},
		{
			name:  "First matching selector wins",
			chain: []Selector{{CSS: "a.missing"}, {CSS: ".tile", Attr: "data-href"}, {CSS: "a.item"}},
			want:  []string{"/p/9"},
		},
		{
			name:  "Nothing matches",
			chain: []Selector{{CSS: "a.none"}},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links, err := ExtractLinks(html, tt.chain)
			require.NoError(t, err)
			assert.Equal(t, tt.want, links)
		})
	}
}
