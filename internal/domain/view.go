package domain

import (
	"slices"
	"strings"
	"time"
)

// View is a named, permission-gated presentation of a subset of items.
// At most one view per registry is the designated root view; its URL is
// the empty string so it renders at the context root.
type View struct {
	ID          string
	Name        string
	Description string
	Root        bool
	AuthScope   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewView normalizes and validates one view definition.
func NewView(id, name, description string, now time.Time) (View, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return View{}, ErrInvalidID
	}
	if !isValidCollectionName(name) {
		return View{}, ErrInvalidViewName
	}
	return View{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// URL returns the view path relative to the context root. It never starts
// with a separator and always ends with one, except for the root view
// which returns the empty string.
func (v View) URL() string {
	if v.Root {
		return ""
	}
	return "view/" + v.Name + "/"
}

// AbsoluteURL joins a context root path with the view URL.
func (v View) AbsoluteURL(rootPath string) string {
	return strings.TrimRight(rootPath, "/") + "/" + v.URL()
}

// DisplayName returns the name shown in navigation and feed titles.
func (v View) DisplayName() string {
	return v.Name
}

// UpdateDescription replaces the view description markdown.
func (v *View) UpdateDescription(description string, now time.Time) {
	v.Description = strings.TrimSpace(description)
	v.UpdatedAt = now.UTC()
}

// SortViews orders sibling views by view name, the canonical sort key.
func SortViews(views []View) {
	slices.SortFunc(views, func(a, b View) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// isValidCollectionName rejects names that would break relative URLs.
func isValidCollectionName(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return name == strings.TrimSpace(name)
}
