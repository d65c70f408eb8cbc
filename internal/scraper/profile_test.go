package scraper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleProfileYAML = `
site: goldshop
render_js: false
currency: KRW
max_pages: 3
tags: [jewelry]
store:
  name: Gold Shop
  type: physical
  address: 서울 종로구 1
listing:
  urls: ["https://goldshop.test/list"]
  item_links:
    - css: a.product
  next_page:
    - css: a.next
fields:
  name:
    - css: h1
    - css: .title
  price:
    - css: .price
  image:
    - css: img.main
      attr: src
`

const multiProfileYAML = `
profiles:
  - site: a
    store: {name: A}
    listing:
      urls: ["https://a.test/"]
      item_links: [{css: a}]
    fields:
      name: [{css: h1}]
  - site: b
    render_js: true
    store: {name: B, type: chain}
    listing:
      urls: ["https://b.test/"]
      item_links: [{css: a}]
    fields:
      name: [{css: h1}]
`

func TestParseProfiles(t *testing.T) {
	profiles, err := ParseProfiles([]byte(singleProfileYAML))
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	p := profiles[0]
	require.NoError(t, p.Validate())
	assert.Equal(t, "goldshop", p.Site)
	assert.Equal(t, 3, p.MaxPages)
	assert.Equal(t, "physical", p.Store.Type)
	assert.Len(t, p.Fields[FieldName], 2)
	assert.Equal(t, "src", p.Fields[FieldImage][0].Attr)

	profiles, err = ParseProfiles([]byte(multiProfileYAML))
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.True(t, profiles[1].RenderJS)
}

func TestProfile_Validate(t *testing.T) {
	valid := func() *Profile {
		return &Profile{
			Site:    "s",
			Store:   StoreSpec{Name: "S"},
			Listing: ListingSpec{URLs: []string{"https://s.test/"}, ItemLinks: []Selector{{CSS: "a"}}},
			Fields:  map[string][]Selector{FieldName: {{CSS: "h1"}}},
		}
	}

	p := valid()
	require.NoError(t, p.Validate())
	assert.Equal(t, "online", p.Store.Type)

	tests := []struct {
		name   string
		mutate func(p *Profile)
	}{
		{"Missing site", func(p *Profile) { p.Site = "" }},
		{"Missing store name", func(p *Profile) { p.Store.Name = " " }},
		{"Unknown store type", func(p *Profile) { p.Store.Type = "kiosk" }},
		{"No listing urls", func(p *Profile) { p.Listing.URLs = nil }},
		{"No item links", func(p *Profile) { p.Listing.ItemLinks = nil }},
		{"No name selector", func(p *Profile) { delete(p.Fields, FieldName) }},
		{"Empty css", func(p *Profile) { p.Fields[FieldPrice] = []Selector{{CSS: ""}} }},
		{"Malformed field css", func(p *Profile) { p.Fields[FieldName] = []Selector{{CSS: "h1[[title"}} }},
		{"Malformed item link css", func(p *Profile) { p.Listing.ItemLinks = []Selector{{CSS: "a:nth-child("}} }},
		{"Malformed next page css", func(p *Profile) { p.Listing.NextPage = []Selector{{CSS: "a.next >"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestLoadProfiles_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "goldshop.yaml"), []byte(singleProfileYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "others.yml"), []byte(multiProfileYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	set, err := LoadProfiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "goldshop"}, set.Sites())

	p, err := set.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "chain", p.Store.Type)

	_, err = set.Get("unknown")
	assert.True(t, IsConfigurationError(err))
}

func TestNewProfileSet_Duplicate(t *testing.T) {
	profiles, err := ParseProfiles([]byte(singleProfileYAML))
	require.NoError(t, err)
	again, err := ParseProfiles([]byte(singleProfileYAML))
	require.NoError(t, err)

	_, err = NewProfileSet(profiles[0], again[0])
	assert.True(t, IsConfigurationError(err))
}

func TestLoadProfiles_MissingPath(t *testing.T) {
	_, err := LoadProfiles(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, IsConfigurationError(err))
}
