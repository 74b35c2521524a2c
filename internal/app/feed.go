package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/utsikt/internal/domain"
)

// FeedFilter selects which builds a feed exports.
type FeedFilter string

// Feed filters.
const (
	FeedAll    FeedFilter = "all"
	FeedFailed FeedFilter = "failed"
)

// ParseFeedFilter canonicalizes a filter string.
func ParseFeedFilter(raw string) (FeedFilter, error) {
	switch FeedFilter(strings.TrimSpace(strings.ToLower(raw))) {
	case FeedAll:
		return FeedAll, nil
	case FeedFailed:
		return FeedFailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFeedFilter, raw)
	}
}

// FeedBuild is one exported feed entry.
type FeedBuild struct {
	BuildID   string
	Job       string
	Number    int
	Result    domain.BuildResult
	Timestamp time.Time
}

// Feed is the exported build feed of one view.
type Feed struct {
	Title  string
	Link   string
	Builds []FeedBuild
}

// RunOrdering decides feed build order and what counts as a failure.
type RunOrdering interface {
	SortNewestFirst(builds []FeedBuild)
	IsFailure(result domain.BuildResult) bool
}

type timestampOrdering struct{}

// DefaultRunOrdering orders builds by timestamp descending, breaking
// ties by build number and job name.
func DefaultRunOrdering() RunOrdering {
	return timestampOrdering{}
}

func (timestampOrdering) SortNewestFirst(builds []FeedBuild) {
	slices.SortFunc(builds, func(a, b FeedBuild) int {
		if c := cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Number, a.Number); c != 0 {
			return c
		}
		return cmp.Compare(a.Job, b.Job)
	})
}

func (timestampOrdering) IsFailure(result domain.BuildResult) bool {
	return domain.NormalizeBuildResult(result) == domain.ResultFailure
}

// BuildFeed exports the view's builds, newest first. The build slice is
// never nil.
func (s *Service) BuildFeed(ctx context.Context, viewName string, filter FeedFilter) (Feed, error) {
	filter, err := ParseFeedFilter(string(filter))
	if err != nil {
		return Feed{}, err
	}
	view, err := s.GetView(ctx, viewName)
	if err != nil {
		return Feed{}, err
	}
	jobs, err := s.viewJobs(ctx, view)
	if err != nil {
		return Feed{}, err
	}

	builds := []FeedBuild{}
	for _, job := range jobs {
		provider, ok := job.(domain.BuildHistoryProvider)
		if !ok {
			continue
		}
		for _, build := range provider.BuildHistory() {
			if filter == FeedFailed && !s.ordering.IsFailure(build.Result) {
				continue
			}
			builds = append(builds, FeedBuild{
				BuildID:   build.ID,
				Job:       job.JobName(),
				Number:    build.Number,
				Result:    build.Result,
				Timestamp: build.Timestamp,
			})
		}
	}
	s.ordering.SortNewestFirst(builds)
	if s.feedLimit > 0 && len(builds) > s.feedLimit {
		builds = builds[:s.feedLimit]
	}

	title := view.DisplayName() + " all builds"
	if filter == FeedFailed {
		title = view.DisplayName() + " failed builds"
	}
	return Feed{Title: title, Link: view.URL(), Builds: builds}, nil
}
