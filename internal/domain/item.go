package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Item is a top-level named entity owned by a view. Jobs hang off items;
// the item itself carries no build state.
type Item struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewItem normalizes and validates one item.
func NewItem(id, name, description string, now time.Time) (Item, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Item{}, ErrInvalidID
	}
	if !isValidCollectionName(name) {
		return Item{}, ErrInvalidName
	}
	return Item{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// URL returns the item's path relative to the server root.
func (i Item) URL() string {
	return "item/" + i.Name + "/"
}

// SortItems orders items by name in place.
func SortItems(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		return cmp.Compare(a.Name, b.Name)
	})
}
