package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hylla/utsikt/internal/domain"
)

type fakeRepo struct {
	views     map[string]domain.View
	viewItems map[string][]string
	items     map[string]domain.Item
	jobs      map[string][]domain.Job

	listItemsErr error
	createCalls  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		views:     make(map[string]domain.View),
		viewItems: make(map[string][]string),
		items:     make(map[string]domain.Item),
		jobs:      make(map[string][]domain.Job),
	}
}

func (r *fakeRepo) CreateView(_ context.Context, v domain.View) error {
	r.views[v.ID] = v
	return nil
}

func (r *fakeRepo) UpdateView(_ context.Context, v domain.View) error {
	if _, ok := r.views[v.ID]; !ok {
		return ErrNotFound
	}
	r.views[v.ID] = v
	return nil
}

func (r *fakeRepo) GetViewByName(_ context.Context, name string) (domain.View, error) {
	for _, v := range r.views {
		if v.Name == name {
			return v, nil
		}
	}
	return domain.View{}, ErrNotFound
}

func (r *fakeRepo) ListViews(_ context.Context) ([]domain.View, error) {
	var views []domain.View
	for _, v := range r.views {
		views = append(views, v)
	}
	return views, nil
}

func (r *fakeRepo) AddViewItem(_ context.Context, viewID, itemID string) error {
	r.viewItems[viewID] = append(r.viewItems[viewID], itemID)
	return nil
}

func (r *fakeRepo) ListViewItems(_ context.Context, viewID string) ([]domain.Item, error) {
	if r.listItemsErr != nil {
		return nil, r.listItemsErr
	}
	var items []domain.Item
	for _, id := range r.viewItems[viewID] {
		items = append(items, r.items[id])
	}
	return items, nil
}

func (r *fakeRepo) CreateItem(_ context.Context, item domain.Item) error {
	r.createCalls++
	r.items[item.ID] = item
	return nil
}

func (r *fakeRepo) GetItemByName(_ context.Context, name string) (domain.Item, error) {
	for _, item := range r.items {
		if item.Name == name {
			return item, nil
		}
	}
	return domain.Item{}, ErrNotFound
}

func (r *fakeRepo) ListItemJobs(_ context.Context, itemID string) ([]domain.Job, error) {
	return r.jobs[itemID], nil
}

func (r *fakeRepo) CreatePipelineJob(_ context.Context, j domain.PipelineJob) error {
	r.jobs[j.ItemID] = append(r.jobs[j.ItemID], j)
	return nil
}

func (r *fakeRepo) CreateExternalJob(_ context.Context, j domain.ExternalJob) error {
	r.jobs[j.ItemID] = append(r.jobs[j.ItemID], j)
	return nil
}

func (r *fakeRepo) CreateBuild(context.Context, domain.Build) error { return nil }

func (r *fakeRepo) CreateGrant(context.Context, domain.Grant) error { return nil }

type fakeAuthorizer struct {
	allowed map[string]bool
	calls   []string
	err     error
}

func newFakeAuthorizer() *fakeAuthorizer {
	return &fakeAuthorizer{allowed: make(map[string]bool)}
}

func (a *fakeAuthorizer) allow(principal string, p domain.Permission, scope string) {
	a.allowed[principal+"|"+string(p)+"|"+scope] = true
}

func (a *fakeAuthorizer) Check(_ context.Context, principal string, p domain.Permission, scope string) (bool, error) {
	key := principal + "|" + string(p) + "|" + scope
	a.calls = append(a.calls, key)
	if a.err != nil {
		return false, a.err
	}
	return a.allowed[key], nil
}

var testEpoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, authz *fakeAuthorizer) *Service {
	n := 0
	idGen := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return NewService(repo, authz, nil, idGen, func() time.Time { return testEpoch }, Config{})
}

func seedView(t *testing.T, repo *fakeRepo, name, scope string) domain.View {
	t.Helper()
	view, err := domain.NewView("view-"+name, name, "", testEpoch)
	if err != nil {
		t.Fatalf("NewView %q: %v", name, err)
	}
	view.AuthScope = scope
	repo.views[view.ID] = view
	return view
}

func seedItem(t *testing.T, repo *fakeRepo, view domain.View, name string) domain.Item {
	t.Helper()
	item, err := domain.NewItem("item-"+name, name, "", testEpoch)
	if err != nil {
		t.Fatalf("NewItem %q: %v", name, err)
	}
	repo.items[item.ID] = item
	repo.viewItems[view.ID] = append(repo.viewItems[view.ID], item.ID)
	return item
}

func TestEnsureRootView(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeAuthorizer())
	ctx := context.Background()

	view, err := svc.EnsureRootView(ctx)
	if err != nil {
		t.Fatalf("EnsureRootView: %v", err)
	}
	if !view.Root || view.Name != "all" {
		t.Fatalf("unexpected root view: %+v", view)
	}
	if view.URL() != "" {
		t.Fatalf("root view URL = %q, want empty", view.URL())
	}

	again, err := svc.EnsureRootView(ctx)
	if err != nil {
		t.Fatalf("EnsureRootView second call: %v", err)
	}
	if again.ID != view.ID {
		t.Fatal("second call must return the existing root view")
	}
}

func TestCreateViewRejectsDuplicates(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeAuthorizer())
	ctx := context.Background()

	if _, err := svc.CreateView(ctx, CreateViewInput{Name: "team"}); err != nil {
		t.Fatalf("CreateView: %v", err)
	}
	if _, err := svc.CreateView(ctx, CreateViewInput{Name: "team"}); !errors.Is(err, domain.ErrViewExists) {
		t.Fatalf("expected ErrViewExists, got %v", err)
	}
}

func TestListViewsSorted(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeAuthorizer())
	ctx := context.Background()

	for _, name := range []string{"ops", "all", "frontend"} {
		seedView(t, repo, name, "")
	}
	views, err := svc.ListViews(ctx)
	if err != nil {
		t.Fatalf("ListViews: %v", err)
	}
	want := []string{"all", "frontend", "ops"}
	for i, name := range want {
		if views[i].Name != name {
			t.Fatalf("views[%d] = %q, want %q", i, views[i].Name, name)
		}
	}
}

func TestGetViewNotFound(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeAuthorizer())
	if _, err := svc.GetView(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestItemsSnapshotSorted(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeAuthorizer())
	ctx := context.Background()

	view := seedView(t, repo, "team", "")
	seedItem(t, repo, view, "zeta")
	seedItem(t, repo, view, "alpha")

	items, err := svc.Items(ctx, "team")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 2 || items[0].Name != "alpha" || items[1].Name != "zeta" {
		t.Fatalf("unexpected items: %+v", items)
	}

	empty := seedView(t, repo, "empty", "")
	items, err = svc.Items(ctx, empty.Name)
	if err != nil {
		t.Fatalf("Items on empty view: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("empty view must return a non-nil empty slice, got %#v", items)
	}
}

func TestLookupItemAbsenceIsNotAnError(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeAuthorizer())
	ctx := context.Background()

	view := seedView(t, repo, "team", "")
	seedItem(t, repo, view, "core")

	item, ok, err := svc.LookupItem(ctx, "team", "core")
	if err != nil || !ok {
		t.Fatalf("LookupItem core: ok=%v err=%v", ok, err)
	}
	if item.Name != "core" {
		t.Fatalf("item = %+v", item)
	}

	_, ok, err = svc.LookupItem(ctx, "team", "ghost")
	if err != nil {
		t.Fatalf("LookupItem ghost: %v", err)
	}
	if ok {
		t.Fatal("ghost must not be found")
	}
}

func TestContains(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeAuthorizer())
	ctx := context.Background()

	team := seedView(t, repo, "team", "")
	other := seedView(t, repo, "other", "")
	member := seedItem(t, repo, team, "core")
	outsider := seedItem(t, repo, other, "infra")

	ok, err := svc.Contains(ctx, "team", member)
	if err != nil || !ok {
		t.Fatalf("Contains member: ok=%v err=%v", ok, err)
	}
	ok, err = svc.Contains(ctx, "team", outsider)
	if err != nil {
		t.Fatalf("Contains outsider: %v", err)
	}
	if ok {
		t.Fatal("outsider must not be contained")
	}
}

func TestCreateItemRequiresCreatePermission(t *testing.T) {
	repo := newFakeRepo()
	authz := newFakeAuthorizer()
	svc := newTestService(repo, authz)
	ctx := context.Background()

	seedView(t, repo, "team", "view:team")

	_, err := svc.CreateItem(ctx, CreateItemInput{View: "team", Principal: "mallory", Name: "core"})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if repo.createCalls != 0 {
		t.Fatal("denied create must not touch the repository")
	}

	authz.allow("alice", domain.PermissionCreate, "view:team")
	item, err := svc.CreateItem(ctx, CreateItemInput{View: "team", Principal: "alice", Name: "core"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.Name != "core" {
		t.Fatalf("item = %+v", item)
	}
	ok, err := svc.Contains(ctx, "team", item)
	if err != nil || !ok {
		t.Fatalf("created item must join the view: ok=%v err=%v", ok, err)
	}

	_, err = svc.CreateItem(ctx, CreateItemInput{View: "team", Principal: "alice", Name: "core"})
	if !errors.Is(err, domain.ErrItemExists) {
		t.Fatalf("expected ErrItemExists, got %v", err)
	}
}

func TestCreateItemValidatesAfterPermission(t *testing.T) {
	repo := newFakeRepo()
	authz := newFakeAuthorizer()
	svc := newTestService(repo, authz)
	ctx := context.Background()

	seedView(t, repo, "team", "view:team")
	authz.allow("alice", domain.PermissionCreate, "view:team")

	_, err := svc.CreateItem(ctx, CreateItemInput{View: "team", Principal: "alice", Name: "bad/name"})
	if !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if len(authz.calls) != 1 {
		t.Fatalf("permission must be checked before validation, calls = %v", authz.calls)
	}
	if repo.createCalls != 0 {
		t.Fatal("invalid name must not create anything")
	}
}

func TestViewScopeFallsBackToDefault(t *testing.T) {
	repo := newFakeRepo()
	authz := newFakeAuthorizer()
	svc := newTestService(repo, authz)
	ctx := context.Background()

	seedView(t, repo, "unscoped", "")
	authz.allow("alice", domain.PermissionCreate, domain.DefaultAuthScope)

	if _, err := svc.CreateItem(ctx, CreateItemInput{View: "unscoped", Principal: "alice", Name: "core"}); err != nil {
		t.Fatalf("CreateItem in default scope: %v", err)
	}
	wantCall := "alice|create|" + domain.DefaultAuthScope
	if len(authz.calls) != 1 || authz.calls[0] != wantCall {
		t.Fatalf("authorizer calls = %v, want [%s]", authz.calls, wantCall)
	}
}

func TestCheckViewPermission(t *testing.T) {
	repo := newFakeRepo()
	authz := newFakeAuthorizer()
	svc := newTestService(repo, authz)
	ctx := context.Background()

	seedView(t, repo, "team", "view:team")
	authz.allow("alice", domain.PermissionRead, "view:team")

	if err := svc.CheckViewPermission(ctx, "team", "alice", domain.PermissionRead); err != nil {
		t.Fatalf("CheckViewPermission: %v", err)
	}
	if err := svc.CheckViewPermission(ctx, "team", "", domain.PermissionRead); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("missing principal: got %v", err)
	}
	if err := svc.CheckViewPermission(ctx, "team", "alice", "launch"); !errors.Is(err, domain.ErrInvalidPermission) {
		t.Fatalf("unknown permission: got %v", err)
	}

	authz.err = errors.New("authz backend down")
	err := svc.CheckViewPermission(ctx, "team", "alice", domain.PermissionRead)
	if err == nil || errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("backend failure must surface as its own error, got %v", err)
	}
}

func TestUpdateViewDescription(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeAuthorizer())
	ctx := context.Background()

	seedView(t, repo, "team", "")
	view, err := svc.UpdateViewDescription(ctx, "team", "  Team pipelines.  ")
	if err != nil {
		t.Fatalf("UpdateViewDescription: %v", err)
	}
	if view.Description != "Team pipelines." {
		t.Fatalf("description = %q", view.Description)
	}
	stored, err := svc.GetView(ctx, "team")
	if err != nil {
		t.Fatalf("GetView: %v", err)
	}
	if stored.Description != "Team pipelines." {
		t.Fatal("description not persisted")
	}
}
