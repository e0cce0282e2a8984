package directory

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"PageviewsETL/internal/domain"
)

// Directory maps tracked company names to their exact Wikipedia page titles.
// It is validated on construction and never mutated afterwards.
type Directory struct {
	titles    map[string]string
	companies []string
}

// Load reads a flat name -> page title mapping. JSON and YAML are both accepted.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read company directory %s: %v", domain.ErrConfig, path, err)
	}

	var entries map[string]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: parse company directory %s: %v", domain.ErrConfig, path, err)
	}

	dir, err := New(entries)
	if err != nil {
		return nil, fmt.Errorf("company directory %s: %w", path, err)
	}
	return dir, nil
}

// New validates entries: names and titles must be non-empty, titles must not
// contain whitespace and no title may belong to two companies.
func New(entries map[string]string) (*Directory, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: company directory is empty", domain.ErrConfig)
	}

	d := &Directory{
		titles:    make(map[string]string, len(entries)),
		companies: make([]string, 0, len(entries)),
	}

	for name, title := range entries {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: company name is empty (title %q)", domain.ErrConfig, title)
		}
		if name != strings.TrimSpace(name) {
			return nil, fmt.Errorf("%w: company name %q has surrounding whitespace", domain.ErrConfig, name)
		}
		if title == "" {
			return nil, fmt.Errorf("%w: company %q has an empty page title", domain.ErrConfig, name)
		}
		if strings.IndexFunc(title, unicode.IsSpace) >= 0 {
			return nil, fmt.Errorf("%w: page title %q for %q contains whitespace (dumps use underscores)", domain.ErrConfig, title, name)
		}
		if other, ok := d.titles[title]; ok {
			first, second := other, name
			if second < first {
				first, second = second, first
			}
			return nil, fmt.Errorf("%w: page title %q is mapped by both %q and %q", domain.ErrConfig, title, first, second)
		}
		d.titles[title] = name
		d.companies = append(d.companies, name)
	}

	sort.Strings(d.companies)
	return d, nil
}

// Lookup returns the company tracking an exact, case-sensitive page title.
func (d *Directory) Lookup(title string) (string, bool) {
	company, ok := d.titles[title]
	return company, ok
}

// Companies lists tracked company names in ascending order.
func (d *Directory) Companies() []string {
	out := make([]string, len(d.companies))
	copy(out, d.companies)
	return out
}

// Len is the number of tracked companies.
func (d *Directory) Len() int {
	return len(d.companies)
}
