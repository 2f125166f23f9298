package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jensjohansen/codeknowl/internal/errkind"
)

// ErrNoSuccessfulRun is returned when a repository has never completed an
// index run successfully.
var ErrNoSuccessfulRun = errkind.New(errkind.NotFound, "latest successful head", "repo has no successful index run")

const runColumns = "run_id, repo_id, status, started_at_utc, finished_at_utc, error, head_commit"

// --- Index run operations ---

// StartRun records a new running index run for repoID.
func (s *Store) StartRun(repoID string) (*Run, error) {
	if _, err := s.GetRepo(repoID); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO index_runs (run_id, repo_id, status, started_at_utc) VALUES (?, ?, ?, ?)",
		id, repoID, RunRunning, s.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert index run: %w", err)
	}
	return s.GetRun(id)
}

// CompleteRun marks runID succeeded at headCommit.
func (s *Store) CompleteRun(runID, headCommit string) (*Run, error) {
	return s.finishRun(runID,
		"UPDATE index_runs SET status = ?, finished_at_utc = ?, head_commit = ? WHERE run_id = ?",
		RunSucceeded, s.timestamp(), headCommit, runID,
	)
}

// FailRun marks runID failed with the captured error text.
func (s *Store) FailRun(runID, errText string) (*Run, error) {
	return s.finishRun(runID,
		"UPDATE index_runs SET status = ?, finished_at_utc = ?, error = ? WHERE run_id = ?",
		RunFailed, s.timestamp(), errText, runID,
	)
}

func (s *Store) finishRun(runID, query string, args ...any) (*Run, error) {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("update index run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, errkind.Errorf(errkind.NotFound, "update index run", "index run not found: %s", runID)
	}
	return s.GetRun(runID)
}

// GetRun returns the run with id, or a NotFound error.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow("SELECT "+runColumns+" FROM index_runs WHERE run_id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.Errorf(errkind.NotFound, "get index run", "index run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get index run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently started run of repoID in any status,
// or nil if the repository has never been indexed.
func (s *Store) LatestRun(repoID string) (*Run, error) {
	row := s.db.QueryRow(
		"SELECT "+runColumns+" FROM index_runs WHERE repo_id = ? ORDER BY started_at_utc DESC, rowid DESC LIMIT 1",
		repoID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest index run: %w", err)
	}
	return r, nil
}

// LatestSuccessfulHead returns the head commit of the most recent succeeded
// run of repoID. It returns ErrNoSuccessfulRun when there is none.
func (s *Store) LatestSuccessfulHead(repoID string) (string, error) {
	var head string
	err := s.db.QueryRow(
		`SELECT head_commit FROM index_runs
		 WHERE repo_id = ? AND status = ? AND head_commit IS NOT NULL AND head_commit != ''
		 ORDER BY started_at_utc DESC, rowid DESC LIMIT 1`,
		repoID, RunSucceeded,
	).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSuccessfulRun
	}
	if err != nil {
		return "", fmt.Errorf("latest successful head: %w", err)
	}
	return head, nil
}

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	var (
		r                         Run
		status, started           string
		finished, errText, commit sql.NullString
	)
	if err := scanner.Scan(&r.ID, &r.RepoID, &status, &started, &finished, &errText, &commit); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("parse started_at_utc: %w", err)
	}
	r.StartedAt = t
	if finished.Valid {
		ft, err := parseTime(finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at_utc: %w", err)
		}
		r.FinishedAt = &ft
	}
	r.Error = errText.String
	r.HeadCommit = commit.String
	return &r, nil
}
