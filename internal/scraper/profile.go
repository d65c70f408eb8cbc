package scraper

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Selector is one candidate in a fallback chain. Attr empty means element text.
type Selector struct {
	CSS  string `yaml:"css" json:"css"`
	Attr string `yaml:"attr,omitempty" json:"attr,omitempty"`
}

// StoreSpec describes the store a profile feeds. The catalog creates it on the
// first run and reuses it afterwards.
type StoreSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"`
	Address     string   `yaml:"address,omitempty" json:"address,omitempty"`
	HomepageURL string   `yaml:"homepage_url,omitempty" json:"homepage_url,omitempty"`
	ImageURL    string   `yaml:"image_url,omitempty" json:"image_url,omitempty"`
	Latitude    *float64 `yaml:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude   *float64 `yaml:"longitude,omitempty" json:"longitude,omitempty"`
}

// ListingSpec drives enumeration.
type ListingSpec struct {
	URLs      []string   `yaml:"urls" json:"urls"`
	ItemLinks []Selector `yaml:"item_links" json:"item_links"`
	NextPage  []Selector `yaml:"next_page,omitempty" json:"next_page,omitempty"`
}

// Profile is the per-site selector configuration.
type Profile struct {
	Site           string                `yaml:"site" json:"site"`
	RenderJS       bool                  `yaml:"render_js" json:"render_js"`
	Currency       string                `yaml:"currency,omitempty" json:"currency,omitempty"`
	MaxPages       int                   `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`
	MaxItems       int                   `yaml:"max_items,omitempty" json:"max_items,omitempty"`
	DownloadImages bool                  `yaml:"download_images,omitempty" json:"download_images,omitempty"`
	Tags           []string              `yaml:"tags,omitempty" json:"tags,omitempty"`
	Store          StoreSpec             `yaml:"store" json:"store"`
	Listing        ListingSpec           `yaml:"listing" json:"listing"`
	Fields         map[string][]Selector `yaml:"fields" json:"fields"`
}

var storeTypes = map[string]bool{"physical": true, "online": true, "chain": true}

// Validate checks the profile is usable. Every problem is a ConfigurationError.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Site) == "" {
		return &ConfigurationError{Reason: "profile without site name"}
	}
	if strings.TrimSpace(p.Store.Name) == "" {
		return &ConfigurationError{Site: p.Site, Reason: "store.name is required"}
	}
	if p.Store.Type == "" {
		p.Store.Type = "online"
	}
	if !storeTypes[p.Store.Type] {
		return &ConfigurationError{Site: p.Site, Reason: fmt.Sprintf("unknown store.type %q", p.Store.Type)}
	}
	if len(p.Listing.URLs) == 0 {
		return &ConfigurationError{Site: p.Site, Reason: "listing.urls is empty"}
	}
	if len(p.Listing.ItemLinks) == 0 {
		return &ConfigurationError{Site: p.Site, Reason: "listing.item_links is empty"}
	}
	if len(p.Fields[FieldName]) == 0 {
		return &ConfigurationError{Site: p.Site, Reason: "fields.name has no selectors"}
	}
	if err := p.checkSelectors("listing.item_links", p.Listing.ItemLinks); err != nil {
		return err
	}
	if err := p.checkSelectors("listing.next_page", p.Listing.NextPage); err != nil {
		return err
	}
	for field, chain := range p.Fields {
		if err := p.checkSelectors("fields."+field, chain); err != nil {
			return err
		}
	}
	return nil
}

// checkSelectors compiles every css selector of a chain up front; goquery
// silently matches nothing on a malformed one.
func (p *Profile) checkSelectors(path string, chain []Selector) error {
	for i, sel := range chain {
		if strings.TrimSpace(sel.CSS) == "" {
			return &ConfigurationError{Site: p.Site, Reason: fmt.Sprintf("%s[%d] has an empty css selector", path, i)}
		}
		if _, err := cascadia.Compile(sel.CSS); err != nil {
			return &ConfigurationError{Site: p.Site, Reason: fmt.Sprintf("%s[%d] invalid css selector %q: %v", path, i, sel.CSS, err)}
		}
	}
	return nil
}

// ProfileSet indexes profiles by site.
type ProfileSet struct {
	profiles map[string]*Profile
}

func NewProfileSet(profiles ...*Profile) (*ProfileSet, error) {
	set := &ProfileSet{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := set.profiles[p.Site]; dup {
			return nil, &ConfigurationError{Site: p.Site, Reason: "declared twice"}
		}
		set.profiles[p.Site] = p
	}
	return set, nil
}

// Get returns the profile for site or a ConfigurationError.
func (s *ProfileSet) Get(site string) (*Profile, error) {
	if s != nil {
		if p, ok := s.profiles[site]; ok {
			return p, nil
		}
	}
	return nil, &ConfigurationError{Site: site, Reason: "no selector profile"}
}

// Sites lists configured sites in sorted order.
func (s *ProfileSet) Sites() []string {
	if s == nil {
		return nil
	}
	sites := make([]string, 0, len(s.profiles))
	for site := range s.profiles {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites
}

// ParseProfiles decodes one YAML document holding either a single profile or a
// list under "profiles".
func ParseProfiles(data []byte) ([]*Profile, error) {
	var multi struct {
		Profiles []*Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &multi); err == nil && len(multi.Profiles) > 0 {
		return multi.Profiles, nil
	}

	var single Profile
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid profile yaml: %v", err)}
	}
	return []*Profile{&single}, nil
}

// LoadProfiles reads a YAML file, or every *.yaml / *.yml file of a directory.
func LoadProfiles(path string) (*ProfileSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("profiles path %s: %v", path, err)}
	}

	files := []string{path}
	if info.IsDir() {
		files = nil
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(path, pattern))
			if err != nil {
				return nil, &ConfigurationError{Reason: err.Error()}
			}
			files = append(files, matches...)
		}
		sort.Strings(files)
	}

	var all []*Profile
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("read %s: %v", file, err)}
		}
		profiles, err := ParseProfiles(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		all = append(all, profiles...)
	}
	return NewProfileSet(all...)
}
