package store

import "time"

// RunStatus is the lifecycle state of an index run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Repo is a registered local repository.
type Repo struct {
	ID        string    `json:"repo_id"`
	LocalPath string    `json:"local_path"`
	CreatedAt time.Time `json:"created_at_utc"`
}

// Run is one index run. FinishedAt is nil while the run is in flight.
// HeadCommit is set on success, Error on failure.
type Run struct {
	ID         string     `json:"run_id"`
	RepoID     string     `json:"repo_id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at_utc"`
	FinishedAt *time.Time `json:"finished_at_utc"`
	Error      string     `json:"error,omitempty"`
	HeadCommit string     `json:"head_commit,omitempty"`
}
