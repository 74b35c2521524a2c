package app

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/hylla/utsikt/internal/domain"
)

// UserActivity is one row of the contributor index: the user's most
// recent change across the view and the job it landed on.
type UserActivity struct {
	User       string
	Job        string
	LastChange time.Time
}

// LastChangeUnixNano returns the activity timestamp as epoch nanoseconds.
func (a UserActivity) LastChangeUnixNano() int64 {
	return a.LastChange.UnixNano()
}

// People folds the view's build histories into a per-contributor
// activity index, most recent first. The result is never nil.
func (s *Service) People(ctx context.Context, viewName string) ([]UserActivity, error) {
	view, err := s.GetView(ctx, viewName)
	if err != nil {
		return nil, err
	}
	jobs, err := s.viewJobs(ctx, view)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]UserActivity)
	for _, job := range jobs {
		provider, ok := job.(domain.BuildHistoryProvider)
		if !ok {
			continue
		}
		for _, build := range provider.BuildHistory() {
			for _, change := range build.Changes {
				if !change.Authored() {
					continue
				}
				// Strictly newer wins; on an equal timestamp the
				// existing row stays.
				current, seen := byUser[change.Author]
				if seen && !build.Timestamp.After(current.LastChange) {
					continue
				}
				byUser[change.Author] = UserActivity{
					User:       change.Author,
					Job:        job.JobName(),
					LastChange: build.Timestamp,
				}
			}
		}
	}

	activity := make([]UserActivity, 0, len(byUser))
	for _, row := range byUser {
		activity = append(activity, row)
	}
	slices.SortFunc(activity, func(a, b UserActivity) int {
		if c := cmp.Compare(b.LastChangeUnixNano(), a.LastChangeUnixNano()); c != 0 {
			return c
		}
		return cmp.Compare(a.User, b.User)
	})
	return activity, nil
}

// HasPeople reports whether any authored change exists anywhere in the
// view, stopping at the first hit.
func (s *Service) HasPeople(ctx context.Context, viewName string) (bool, error) {
	view, err := s.GetView(ctx, viewName)
	if err != nil {
		return false, err
	}
	jobs, err := s.viewJobs(ctx, view)
	if err != nil {
		return false, err
	}
	for _, job := range jobs {
		provider, ok := job.(domain.BuildHistoryProvider)
		if !ok {
			continue
		}
		for _, build := range provider.BuildHistory() {
			for _, change := range build.Changes {
				if change.Authored() {
					return true, nil
				}
			}
		}
	}
	return false, nil
}
