package app

import (
	"context"

	"github.com/hylla/utsikt/internal/domain"
)

// Repository supplies the item/job/build snapshot data the service
// traverses and persists view-level mutations.
type Repository interface {
	CreateView(context.Context, domain.View) error
	UpdateView(context.Context, domain.View) error
	GetViewByName(context.Context, string) (domain.View, error)
	ListViews(context.Context) ([]domain.View, error)
	AddViewItem(context.Context, string, string) error
	ListViewItems(context.Context, string) ([]domain.Item, error)

	CreateItem(context.Context, domain.Item) error
	GetItemByName(context.Context, string) (domain.Item, error)
	ListItemJobs(context.Context, string) ([]domain.Job, error)

	CreatePipelineJob(context.Context, domain.PipelineJob) error
	CreateExternalJob(context.Context, domain.ExternalJob) error
	CreateBuild(context.Context, domain.Build) error

	CreateGrant(context.Context, domain.Grant) error
}

// Authorizer is the external authorization engine: one check call per
// (principal, permission, scope) tuple.
type Authorizer interface {
	Check(ctx context.Context, principal string, permission domain.Permission, scope string) (bool, error)
}
