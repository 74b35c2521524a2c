package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/utsikt/internal/domain"
)

// IDGenerator mints unique identifiers for new records.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Config carries the service-level policy knobs.
type Config struct {
	// RootViewName names the implicitly created top-level view.
	RootViewName string
	// DefaultAuthScope gates views that declare no scope of their own.
	DefaultAuthScope string
	// FeedLimit caps the number of builds per exported feed. Zero means
	// unlimited.
	FeedLimit int
}

// Service implements the view use cases over the injected ports.
type Service struct {
	repo         Repository
	authz        Authorizer
	ordering     RunOrdering
	idGen        IDGenerator
	clock        Clock
	rootViewName string
	defaultScope string
	feedLimit    int
}

// NewService wires a service from its collaborators. A nil ordering
// falls back to timestamp-descending.
func NewService(repo Repository, authz Authorizer, ordering RunOrdering, idGen IDGenerator, clock Clock, cfg Config) *Service {
	if ordering == nil {
		ordering = DefaultRunOrdering()
	}
	rootName := strings.TrimSpace(cfg.RootViewName)
	if rootName == "" {
		rootName = "all"
	}
	scope := strings.TrimSpace(cfg.DefaultAuthScope)
	if scope == "" {
		scope = domain.DefaultAuthScope
	}
	return &Service{
		repo:         repo,
		authz:        authz,
		ordering:     ordering,
		idGen:        idGen,
		clock:        clock,
		rootViewName: rootName,
		defaultScope: scope,
		feedLimit:    cfg.FeedLimit,
	}
}

// DefaultScope returns the fallback authorization scope.
func (s *Service) DefaultScope() string {
	return s.defaultScope
}

// EnsureRootView creates the top-level view on first use.
func (s *Service) EnsureRootView(ctx context.Context) (domain.View, error) {
	view, err := s.repo.GetViewByName(ctx, s.rootViewName)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.View{}, fmt.Errorf("look up root view: %w", err)
	}
	view, err = domain.NewView(s.idGen(), s.rootViewName, "Every item on this controller.", s.clock())
	if err != nil {
		return domain.View{}, err
	}
	view.Root = true
	if err := s.repo.CreateView(ctx, view); err != nil {
		return domain.View{}, fmt.Errorf("create root view: %w", err)
	}
	return view, nil
}

// CreateViewInput carries the fields for creating a view.
type CreateViewInput struct {
	Name        string
	Description string
	AuthScope   string
}

// CreateView registers a new named view.
func (s *Service) CreateView(ctx context.Context, in CreateViewInput) (domain.View, error) {
	if _, err := s.repo.GetViewByName(ctx, strings.TrimSpace(in.Name)); err == nil {
		return domain.View{}, domain.ErrViewExists
	} else if !errors.Is(err, ErrNotFound) {
		return domain.View{}, fmt.Errorf("look up view: %w", err)
	}
	view, err := domain.NewView(s.idGen(), in.Name, in.Description, s.clock())
	if err != nil {
		return domain.View{}, err
	}
	view.AuthScope = strings.TrimSpace(in.AuthScope)
	if err := s.repo.CreateView(ctx, view); err != nil {
		return domain.View{}, fmt.Errorf("create view: %w", err)
	}
	return view, nil
}

// ListViews returns all views ordered by name.
func (s *Service) ListViews(ctx context.Context) ([]domain.View, error) {
	views, err := s.repo.ListViews(ctx)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	domain.SortViews(views)
	return views, nil
}

// GetView resolves one view by name.
func (s *Service) GetView(ctx context.Context, name string) (domain.View, error) {
	view, err := s.repo.GetViewByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.View{}, fmt.Errorf("view %q: %w", strings.TrimSpace(name), ErrNotFound)
		}
		return domain.View{}, fmt.Errorf("get view: %w", err)
	}
	return view, nil
}

// UpdateViewDescription replaces a view's description text.
func (s *Service) UpdateViewDescription(ctx context.Context, name, description string) (domain.View, error) {
	view, err := s.GetView(ctx, name)
	if err != nil {
		return domain.View{}, err
	}
	view.UpdateDescription(description, s.clock())
	if err := s.repo.UpdateView(ctx, view); err != nil {
		return domain.View{}, fmt.Errorf("update view: %w", err)
	}
	return view, nil
}

// Items returns the view's membership snapshot, ordered by item name.
// The result is never nil.
func (s *Service) Items(ctx context.Context, viewName string) ([]domain.Item, error) {
	view, err := s.GetView(ctx, viewName)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListViewItems(ctx, view.ID)
	if err != nil {
		return nil, fmt.Errorf("list view items: %w", err)
	}
	if items == nil {
		items = []domain.Item{}
	}
	domain.SortItems(items)
	return items, nil
}

// LookupItem finds one item by name within a view. Absence is reported
// through the boolean, not as an error.
func (s *Service) LookupItem(ctx context.Context, viewName, itemName string) (domain.Item, bool, error) {
	items, err := s.Items(ctx, viewName)
	if err != nil {
		return domain.Item{}, false, err
	}
	itemName = strings.TrimSpace(itemName)
	for _, item := range items {
		if item.Name == itemName {
			return item, true, nil
		}
	}
	return domain.Item{}, false, nil
}

// Contains reports whether the item is part of the view's snapshot.
func (s *Service) Contains(ctx context.Context, viewName string, item domain.Item) (bool, error) {
	items, err := s.Items(ctx, viewName)
	if err != nil {
		return false, err
	}
	for _, candidate := range items {
		if candidate.ID == item.ID {
			return true, nil
		}
	}
	return false, nil
}

// CreateItemInput carries the fields for creating an item through a view.
type CreateItemInput struct {
	View        string
	Principal   string
	Name        string
	Description string
}

// CreateItem creates a new item through the view, gated on the create
// permission. The permission check runs before any mutation.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (domain.Item, error) {
	view, err := s.GetView(ctx, in.View)
	if err != nil {
		return domain.Item{}, err
	}
	if err := s.aclForView(view).CheckPermission(ctx, in.Principal, domain.PermissionCreate); err != nil {
		return domain.Item{}, err
	}
	if _, err := s.repo.GetItemByName(ctx, strings.TrimSpace(in.Name)); err == nil {
		return domain.Item{}, domain.ErrItemExists
	} else if !errors.Is(err, ErrNotFound) {
		return domain.Item{}, fmt.Errorf("look up item: %w", err)
	}
	item, err := domain.NewItem(s.idGen(), in.Name, in.Description, s.clock())
	if err != nil {
		return domain.Item{}, err
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return domain.Item{}, fmt.Errorf("create item: %w", err)
	}
	if err := s.repo.AddViewItem(ctx, view.ID, item.ID); err != nil {
		return domain.Item{}, fmt.Errorf("add item to view: %w", err)
	}
	return item, nil
}

// CheckViewPermission exposes the view's permission gate to adapters.
func (s *Service) CheckViewPermission(ctx context.Context, viewName, principal string, p domain.Permission) error {
	view, err := s.GetView(ctx, viewName)
	if err != nil {
		return err
	}
	return s.aclForView(view).CheckPermission(ctx, principal, p)
}

// viewJobs collects the jobs of every item in the view's snapshot.
func (s *Service) viewJobs(ctx context.Context, view domain.View) ([]domain.Job, error) {
	items, err := s.repo.ListViewItems(ctx, view.ID)
	if err != nil {
		return nil, fmt.Errorf("list view items: %w", err)
	}
	var jobs []domain.Job
	for _, item := range items {
		itemJobs, err := s.repo.ListItemJobs(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("list jobs for %s: %w", item.Name, err)
		}
		jobs = append(jobs, itemJobs...)
	}
	return jobs, nil
}
