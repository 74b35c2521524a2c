package domain

// Job is any item-reachable entity. Whether a job carries a build
// history is a capability, not a given: traversals check for
// BuildHistoryProvider instead of inspecting concrete types.
type Job interface {
	JobID() string
	JobName() string
	OwningItem() string
}

// BuildHistoryProvider is the optional capability a job exposes when it
// records historical builds. Jobs without it are skipped by history
// traversals; that is not an error.
type BuildHistoryProvider interface {
	BuildHistory() []Build
}

// PipelineJob is a job that runs builds locally and keeps their history.
// History is a point-in-time snapshot, newest build first.
type PipelineJob struct {
	ID      string
	ItemID  string
	Name    string
	History []Build
}

func (j PipelineJob) JobID() string      { return j.ID }
func (j PipelineJob) JobName() string    { return j.Name }
func (j PipelineJob) OwningItem() string { return j.ItemID }

// BuildHistory returns the snapshot of recorded builds, newest first.
func (j PipelineJob) BuildHistory() []Build {
	return j.History
}

// ExternalJob is a job executed and recorded elsewhere. It is reachable
// from items but exposes no build history.
type ExternalJob struct {
	ID        string
	ItemID    string
	Name      string
	SourceURL string
}

func (j ExternalJob) JobID() string      { return j.ID }
func (j ExternalJob) JobName() string    { return j.Name }
func (j ExternalJob) OwningItem() string { return j.ItemID }
