package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/utsikt/internal/domain"
)

// SearchEntry names one navigable target.
type SearchEntry struct {
	Name string
	URL  string
}

// ItemCollection adapts a dynamic named collection into the search
// index. Lookups hit live data, never a cached copy.
type ItemCollection struct {
	Get func(ctx context.Context, name string) (domain.Item, bool, error)
	All func(ctx context.Context) ([]domain.Item, error)
}

// SearchIndex is a composite of fixed entries and live item
// collections. Contributions happen at composition time; queries are
// read-only afterwards.
type SearchIndex struct {
	fixed       []SearchEntry
	collections []ItemCollection
}

// NewSearchIndex returns an empty index.
func NewSearchIndex() *SearchIndex {
	return &SearchIndex{}
}

// AddFixed registers a static entry.
func (x *SearchIndex) AddFixed(name, url string) {
	x.fixed = append(x.fixed, SearchEntry{Name: name, URL: url})
}

// AddCollection registers a live item collection.
func (x *SearchIndex) AddCollection(c ItemCollection) {
	x.collections = append(x.collections, c)
}

// Find resolves a key to a single entry, fixed entries first.
func (x *SearchIndex) Find(ctx context.Context, key string) (SearchEntry, bool, error) {
	key = strings.TrimSpace(key)
	for _, entry := range x.fixed {
		if entry.Name == key {
			return entry, true, nil
		}
	}
	for _, c := range x.collections {
		item, ok, err := c.Get(ctx, key)
		if err != nil {
			return SearchEntry{}, false, fmt.Errorf("search collection: %w", err)
		}
		if ok {
			return SearchEntry{Name: item.Name, URL: item.URL()}, true, nil
		}
	}
	return SearchEntry{}, false, nil
}

// Suggest lists entries whose name starts with the prefix. Duplicate
// names across collections collapse to the first hit.
func (x *SearchIndex) Suggest(ctx context.Context, prefix string) ([]SearchEntry, error) {
	prefix = strings.TrimSpace(prefix)
	seen := make(map[string]bool)
	matches := []SearchEntry{}
	add := func(entry SearchEntry) {
		if seen[entry.Name] || !strings.HasPrefix(entry.Name, prefix) {
			return
		}
		seen[entry.Name] = true
		matches = append(matches, entry)
	}
	for _, entry := range x.fixed {
		add(entry)
	}
	for _, c := range x.collections {
		items, err := c.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("search collection: %w", err)
		}
		for _, item := range items {
			add(SearchEntry{Name: item.Name, URL: item.URL()})
		}
	}
	return matches, nil
}

// ContributeSearchIndex registers the view itself plus its live item
// collection on the index.
func (s *Service) ContributeSearchIndex(ctx context.Context, index *SearchIndex, viewName string) error {
	view, err := s.GetView(ctx, viewName)
	if err != nil {
		return err
	}
	index.AddFixed(view.Name, view.URL())
	index.AddCollection(ItemCollection{
		Get: func(ctx context.Context, name string) (domain.Item, bool, error) {
			return s.LookupItem(ctx, view.Name, name)
		},
		All: func(ctx context.Context) ([]domain.Item, error) {
			return s.Items(ctx, view.Name)
		},
	})
	return nil
}
