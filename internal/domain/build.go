package domain

import (
	"slices"
	"strings"
	"time"
)

// BuildResult represents the recorded outcome of one historical build.
type BuildResult string

// BuildResult values.
const (
	ResultSuccess  BuildResult = "success"
	ResultFailure  BuildResult = "failure"
	ResultUnstable BuildResult = "unstable"
	ResultAborted  BuildResult = "aborted"
)

// validBuildResults stores supported build outcomes.
var validBuildResults = []BuildResult{
	ResultSuccess,
	ResultFailure,
	ResultUnstable,
	ResultAborted,
}

// ChangeEntry is one recorded change in a build's change set. Author may
// be empty when the change could not be attributed.
type ChangeEntry struct {
	ID       string
	Author   string
	Message  string
	CommitID string
}

// Authored reports whether the entry carries an author attribution.
func (e ChangeEntry) Authored() bool {
	return strings.TrimSpace(e.Author) != ""
}

// Build is one historical execution of a job: a timestamp, an outcome,
// and the change set that went into it.
type Build struct {
	ID        string
	JobID     string
	Number    int
	Result    BuildResult
	Timestamp time.Time
	Changes   []ChangeEntry
}

// BuildInput holds values used to record a new build.
type BuildInput struct {
	ID        string
	JobID     string
	Number    int
	Result    BuildResult
	Timestamp time.Time
	Changes   []ChangeEntry
}

// NewBuild normalizes and validates one build record.
func NewBuild(in BuildInput) (Build, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.JobID = strings.TrimSpace(in.JobID)
	if in.ID == "" || in.JobID == "" {
		return Build{}, ErrInvalidID
	}
	result := NormalizeBuildResult(in.Result)
	if !IsValidBuildResult(result) {
		return Build{}, ErrInvalidResult
	}
	changes := make([]ChangeEntry, 0, len(in.Changes))
	for _, entry := range in.Changes {
		entry.ID = strings.TrimSpace(entry.ID)
		entry.Author = strings.TrimSpace(entry.Author)
		entry.Message = strings.TrimSpace(entry.Message)
		entry.CommitID = strings.TrimSpace(entry.CommitID)
		changes = append(changes, entry)
	}
	return Build{
		ID:        in.ID,
		JobID:     in.JobID,
		Number:    in.Number,
		Result:    result,
		Timestamp: in.Timestamp.UTC(),
		Changes:   changes,
	}, nil
}

// NormalizeBuildResult canonicalizes result values.
func NormalizeBuildResult(result BuildResult) BuildResult {
	return BuildResult(strings.TrimSpace(strings.ToLower(string(result))))
}

// IsValidBuildResult reports whether a result value is supported.
func IsValidBuildResult(result BuildResult) bool {
	return slices.Contains(validBuildResults, NormalizeBuildResult(result))
}
