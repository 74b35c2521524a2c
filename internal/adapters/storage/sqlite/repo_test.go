package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hylla/utsikt/internal/app"
	"github.com/hylla/utsikt/internal/domain"
	_ "modernc.org/sqlite"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "utsikt.db")
	repo, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func TestRepository_ViewItemLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	view, err := domain.NewView("v1", "team", "Team pipelines", now)
	if err != nil {
		t.Fatalf("NewView() error = %v", err)
	}
	view.AuthScope = "view:team"
	if err := repo.CreateView(ctx, view); err != nil {
		t.Fatalf("CreateView() error = %v", err)
	}

	loaded, err := repo.GetViewByName(ctx, "team")
	if err != nil {
		t.Fatalf("GetViewByName() error = %v", err)
	}
	if loaded.AuthScope != "view:team" || loaded.Description != "Team pipelines" {
		t.Fatalf("unexpected view %+v", loaded)
	}
	if !loaded.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", loaded.CreatedAt, now)
	}

	if _, err := repo.GetViewByName(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound, got %v", err)
	}

	loaded.UpdateDescription("Renovated", now.Add(time.Hour))
	if err := repo.UpdateView(ctx, loaded); err != nil {
		t.Fatalf("UpdateView() error = %v", err)
	}
	loaded, err = repo.GetViewByName(ctx, "team")
	if err != nil {
		t.Fatalf("GetViewByName() after update error = %v", err)
	}
	if loaded.Description != "Renovated" {
		t.Fatalf("description = %q", loaded.Description)
	}

	item, err := domain.NewItem("i1", "core", "", now)
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if err := repo.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if err := repo.AddViewItem(ctx, view.ID, item.ID); err != nil {
		t.Fatalf("AddViewItem() error = %v", err)
	}
	// idempotent membership
	if err := repo.AddViewItem(ctx, view.ID, item.ID); err != nil {
		t.Fatalf("AddViewItem() repeat error = %v", err)
	}

	items, err := repo.ListViewItems(ctx, view.ID)
	if err != nil {
		t.Fatalf("ListViewItems() error = %v", err)
	}
	if len(items) != 1 || items[0].Name != "core" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestRepository_ListViewsOrderedByName(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Now().UTC()

	for _, name := range []string{"ops", "all", "frontend"} {
		view, err := domain.NewView("v-"+name, name, "", now)
		if err != nil {
			t.Fatalf("NewView() error = %v", err)
		}
		if err := repo.CreateView(ctx, view); err != nil {
			t.Fatalf("CreateView() error = %v", err)
		}
	}

	views, err := repo.ListViews(ctx)
	if err != nil {
		t.Fatalf("ListViews() error = %v", err)
	}
	want := []string{"all", "frontend", "ops"}
	for i, name := range want {
		if views[i].Name != name {
			t.Fatalf("views[%d] = %q, want %q", i, views[i].Name, name)
		}
	}
}

func TestRepository_JobsAndBuildHistory(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	item, err := domain.NewItem("i1", "core", "", now)
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if err := repo.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if err := repo.CreatePipelineJob(ctx, domain.PipelineJob{ID: "j1", ItemID: item.ID, Name: "build"}); err != nil {
		t.Fatalf("CreatePipelineJob() error = %v", err)
	}
	if err := repo.CreateExternalJob(ctx, domain.ExternalJob{ID: "j2", ItemID: item.ID, Name: "mirror", SourceURL: "https://ext.example.net"}); err != nil {
		t.Fatalf("CreateExternalJob() error = %v", err)
	}

	older, err := domain.NewBuild(domain.BuildInput{
		ID: "b1", JobID: "j1", Number: 1, Result: domain.ResultSuccess, Timestamp: now,
		Changes: []domain.ChangeEntry{{ID: "c1", Author: "alice", Message: "initial", CommitID: "abc"}},
	})
	if err != nil {
		t.Fatalf("NewBuild() error = %v", err)
	}
	newer, err := domain.NewBuild(domain.BuildInput{
		ID: "b2", JobID: "j1", Number: 2, Result: domain.ResultFailure, Timestamp: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("NewBuild() error = %v", err)
	}
	if err := repo.CreateBuild(ctx, older); err != nil {
		t.Fatalf("CreateBuild() error = %v", err)
	}
	if err := repo.CreateBuild(ctx, newer); err != nil {
		t.Fatalf("CreateBuild() error = %v", err)
	}

	jobs, err := repo.ListItemJobs(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListItemJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	pipeline, ok := jobs[0].(domain.PipelineJob)
	if !ok {
		t.Fatalf("jobs[0] = %T, want PipelineJob", jobs[0])
	}
	if len(pipeline.History) != 2 {
		t.Fatalf("expected 2 builds, got %d", len(pipeline.History))
	}
	if pipeline.History[0].ID != "b2" || pipeline.History[1].ID != "b1" {
		t.Fatalf("history not newest first: %+v", pipeline.History)
	}
	if len(pipeline.History[1].Changes) != 1 || pipeline.History[1].Changes[0].Author != "alice" {
		t.Fatalf("unexpected change entries %+v", pipeline.History[1].Changes)
	}

	external, ok := jobs[1].(domain.ExternalJob)
	if !ok {
		t.Fatalf("jobs[1] = %T, want ExternalJob", jobs[1])
	}
	if _, ok := domain.Job(external).(domain.BuildHistoryProvider); ok {
		t.Fatal("external job must not expose build history")
	}
}

func TestRepository_GrantsBackAuthorization(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Now().UTC()

	grant, err := domain.NewGrant("g1", "view:team", "alice", domain.PermissionCreate, now)
	if err != nil {
		t.Fatalf("NewGrant() error = %v", err)
	}
	if err := repo.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	// duplicate tuple with a fresh id must not fail
	dup, err := domain.NewGrant("g2", "view:team", "alice", domain.PermissionCreate, now)
	if err != nil {
		t.Fatalf("NewGrant() error = %v", err)
	}
	if err := repo.CreateGrant(ctx, dup); err != nil {
		t.Fatalf("CreateGrant() duplicate error = %v", err)
	}

	allowed, err := repo.Check(ctx, "alice", domain.PermissionCreate, "view:team")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !allowed {
		t.Fatal("granted tuple must be allowed")
	}

	for _, tc := range []struct {
		principal  string
		permission domain.Permission
		scope      string
	}{
		{"mallory", domain.PermissionCreate, "view:team"},
		{"alice", domain.PermissionDelete, "view:team"},
		{"alice", domain.PermissionCreate, "view:other"},
	} {
		allowed, err := repo.Check(ctx, tc.principal, tc.permission, tc.scope)
		if err != nil {
			t.Fatalf("Check(%v) error = %v", tc, err)
		}
		if allowed {
			t.Fatalf("tuple %v must be denied", tc)
		}
	}
}
