package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/utsikt/internal/app"
	"github.com/hylla/utsikt/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository persists views, items, jobs, builds, and grants. It backs
// both the storage and the authorization ports.
type Repository struct {
	db *sql.DB
}

// Open opens the database file, creating parent directories as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS views (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			is_root INTEGER NOT NULL DEFAULT 0,
			auth_scope TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS view_items (
			view_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			PRIMARY KEY (view_id, item_id),
			FOREIGN KEY(view_id) REFERENCES views(id) ON DELETE CASCADE,
			FOREIGN KEY(item_id) REFERENCES items(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			FOREIGN KEY(item_id) REFERENCES items(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			result TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			FOREIGN KEY(job_id) REFERENCES jobs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS change_entries (
			id TEXT PRIMARY KEY,
			build_id TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			commit_id TEXT NOT NULL DEFAULT '',
			FOREIGN KEY(build_id) REFERENCES builds(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS grants (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			principal TEXT NOT NULL,
			permission TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_view_items_view ON view_items(view_id);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_item ON jobs(item_id);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_job_timestamp ON builds(job_id, timestamp DESC, number DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_change_entries_build ON change_entries(build_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_grants_tuple ON grants(scope, principal, permission);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateView creates view.
func (r *Repository) CreateView(ctx context.Context, v domain.View) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO views(id, name, description, is_root, auth_scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Name, v.Description, boolInt(v.Root), v.AuthScope, ts(v.CreatedAt), ts(v.UpdatedAt))
	return err
}

// UpdateView updates the stored view row.
func (r *Repository) UpdateView(ctx context.Context, v domain.View) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE views
		SET name = ?, description = ?, is_root = ?, auth_scope = ?, updated_at = ?
		WHERE id = ?
	`, v.Name, v.Description, boolInt(v.Root), v.AuthScope, ts(v.UpdatedAt), v.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetViewByName returns the view with the given name.
func (r *Repository) GetViewByName(ctx context.Context, name string) (domain.View, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_root, auth_scope, created_at, updated_at
		FROM views
		WHERE name = ?
	`, name)
	return scanView(row)
}

// ListViews lists views.
func (r *Repository) ListViews(ctx context.Context) ([]domain.View, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, is_root, auth_scope, created_at, updated_at
		FROM views
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.View{}
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, rows.Err()
}

// AddViewItem records view membership. Re-adding is a no-op.
func (r *Repository) AddViewItem(ctx context.Context, viewID, itemID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO view_items(view_id, item_id) VALUES (?, ?)
	`, viewID, itemID)
	return err
}

// ListViewItems lists the items belonging to a view.
func (r *Repository) ListViewItems(ctx context.Context, viewID string) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.name, i.description, i.created_at, i.updated_at
		FROM items i
		JOIN view_items vi ON vi.item_id = i.id
		WHERE vi.view_id = ?
		ORDER BY i.name ASC
	`, viewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CreateItem creates item.
func (r *Repository) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items(id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, item.ID, item.Name, item.Description, ts(item.CreatedAt), ts(item.UpdatedAt))
	return err
}

// GetItemByName returns the item with the given name.
func (r *Repository) GetItemByName(ctx context.Context, name string) (domain.Item, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM items
		WHERE name = ?
	`, name)
	return scanItem(row)
}

// ListItemJobs loads the item's jobs with full build histories attached.
func (r *Repository) ListItemJobs(ctx context.Context, itemID string) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_id, name, kind, source_url
		FROM jobs
		WHERE item_id = ?
		ORDER BY name ASC
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type jobRow struct {
		id, itemID, name, kind, sourceURL string
	}
	var jobRows []jobRow
	for rows.Next() {
		var jr jobRow
		if err := rows.Scan(&jr.id, &jr.itemID, &jr.name, &jr.kind, &jr.sourceURL); err != nil {
			return nil, err
		}
		jobRows = append(jobRows, jr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []domain.Job{}
	for _, jr := range jobRows {
		switch jr.kind {
		case "pipeline":
			history, err := r.listJobBuilds(ctx, jr.id)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.PipelineJob{ID: jr.id, ItemID: jr.itemID, Name: jr.name, History: history})
		case "external":
			out = append(out, domain.ExternalJob{ID: jr.id, ItemID: jr.itemID, Name: jr.name, SourceURL: jr.sourceURL})
		default:
			return nil, fmt.Errorf("unknown job kind %q for job %s", jr.kind, jr.id)
		}
	}
	return out, nil
}

// listJobBuilds loads one job's builds newest first, changes included.
func (r *Repository) listJobBuilds(ctx context.Context, jobID string) ([]domain.Build, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, number, result, timestamp
		FROM builds
		WHERE job_id = ?
		ORDER BY timestamp DESC, number DESC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	builds := []domain.Build{}
	for rows.Next() {
		var (
			b       domain.Build
			whenRaw string
		)
		if err := rows.Scan(&b.ID, &b.JobID, &b.Number, &b.Result, &whenRaw); err != nil {
			return nil, err
		}
		b.Timestamp = parseTS(whenRaw)
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range builds {
		changes, err := r.listBuildChanges(ctx, builds[i].ID)
		if err != nil {
			return nil, err
		}
		builds[i].Changes = changes
	}
	return builds, nil
}

// listBuildChanges lists one build's change entries.
func (r *Repository) listBuildChanges(ctx context.Context, buildID string) ([]domain.ChangeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, author, message, commit_id
		FROM change_entries
		WHERE build_id = ?
		ORDER BY id ASC
	`, buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ChangeEntry{}
	for rows.Next() {
		var c domain.ChangeEntry
		if err := rows.Scan(&c.ID, &c.Author, &c.Message, &c.CommitID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreatePipelineJob creates a history-bearing job row.
func (r *Repository) CreatePipelineJob(ctx context.Context, j domain.PipelineJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs(id, item_id, name, kind, source_url)
		VALUES (?, ?, ?, 'pipeline', '')
	`, j.ID, j.ItemID, j.Name)
	return err
}

// CreateExternalJob creates an externally monitored job row.
func (r *Repository) CreateExternalJob(ctx context.Context, j domain.ExternalJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs(id, item_id, name, kind, source_url)
		VALUES (?, ?, ?, 'external', ?)
	`, j.ID, j.ItemID, j.Name, j.SourceURL)
	return err
}

// CreateBuild records one build and its change entries.
func (r *Repository) CreateBuild(ctx context.Context, b domain.Build) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds(id, job_id, number, result, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.JobID, b.Number, string(b.Result), ts(b.Timestamp))
	if err != nil {
		return err
	}
	for _, c := range b.Changes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO change_entries(id, build_id, author, message, commit_id)
			VALUES (?, ?, ?, ?, ?)
		`, c.ID, b.ID, c.Author, c.Message, c.CommitID)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// CreateGrant creates grant.
func (r *Repository) CreateGrant(ctx context.Context, g domain.Grant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO grants(id, scope, principal, permission, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, g.ID, g.Scope, g.Principal, string(g.Permission), ts(g.CreatedAt))
	return err
}

// Check reports whether a matching grant row exists.
func (r *Repository) Check(ctx context.Context, principal string, permission domain.Permission, scope string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM grants WHERE scope = ? AND principal = ? AND permission = ? LIMIT 1
	`, scope, principal, string(permission))
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanView handles scan view.
func scanView(s scanner) (domain.View, error) {
	var (
		v          domain.View
		root       int
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&v.ID, &v.Name, &v.Description, &root, &v.AuthScope, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.View{}, app.ErrNotFound
		}
		return domain.View{}, err
	}
	v.Root = root != 0
	v.CreatedAt = parseTS(createdRaw)
	v.UpdatedAt = parseTS(updatedRaw)
	return v, nil
}

// scanItem handles scan item.
func scanItem(s scanner) (domain.Item, error) {
	var (
		item       domain.Item
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&item.ID, &item.Name, &item.Description, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, app.ErrNotFound
		}
		return domain.Item{}, err
	}
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	return item, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// boolInt stores booleans as 0/1.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
