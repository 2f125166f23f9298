package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jensjohansen/codeknowl/internal/errkind"
)

// --- Repo operations ---

// RegisterRepo records localPath under a fresh repository identifier.
// The same path may be registered more than once.
func (s *Store) RegisterRepo(localPath string) (*Repo, error) {
	if localPath == "" {
		return nil, errkind.New(errkind.InvalidInput, "register repo", "local path is required")
	}
	id := uuid.NewString()
	created := s.timestamp()
	_, err := s.db.Exec(
		"INSERT INTO repos (repo_id, local_path, created_at_utc) VALUES (?, ?, ?)",
		id, localPath, created,
	)
	if err != nil {
		return nil, fmt.Errorf("insert repo: %w", err)
	}
	return s.GetRepo(id)
}

// GetRepo returns the repository with id, or a NotFound error.
func (s *Store) GetRepo(id string) (*Repo, error) {
	row := s.db.QueryRow(
		"SELECT repo_id, local_path, created_at_utc FROM repos WHERE repo_id = ?", id,
	)
	r, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.Errorf(errkind.NotFound, "get repo", "repo not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get repo: %w", err)
	}
	return r, nil
}

// ListRepos returns all repositories, newest registration first.
func (s *Store) ListRepos() ([]*Repo, error) {
	rows, err := s.db.Query(
		"SELECT repo_id, local_path, created_at_utc FROM repos ORDER BY created_at_utc DESC, rowid DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()

	var result []*Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repo: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRepo(scanner interface{ Scan(...any) error }) (*Repo, error) {
	var (
		r       Repo
		created string
	)
	if err := scanner.Scan(&r.ID, &r.LocalPath, &created); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at_utc: %w", err)
	}
	r.CreatedAt = t
	return &r, nil
}
