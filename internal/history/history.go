// Package history versions the record files with go-git, one commit per
// mutation. Pure Go, no git binary required.
//
// The repository lives inside the records directory, so browsing history or
// recovering a pre-mutation state works with any git tool.
package history

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const commitTimeout = time.Minute

// Commit is one recorded mutation.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}

// Repo wraps a git repository over the records directory.
type Repo struct {
	dir   string
	name  string
	email string

	mu   sync.Mutex
	repo *gogit.Repository
}

// Open opens the repository at dir, initializing it on first use. name and
// email become the commit signature.
func Open(dir, name, email string) (*Repo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Repo{dir: dir, name: name, email: email, repo: repo}, nil
}

// Commit stages everything under the directory and commits it. A clean
// worktree is a no-op, so callers can commit after every mutation without
// producing empty commits.
func (r *Repo) Commit(ctx context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Detach from the request context but keep a bound.
	_, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := w.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	sig := &object.Signature{Name: r.name, Email: r.email, When: time.Now()}
	if _, err := w.Commit(message, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Log returns up to n recent commits, newest first.
func (r *Repo) Log(_ context.Context, n int) ([]Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	iter, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		return nil, nil // no commits yet is not an error
	}
	defer iter.Close()

	var commits []Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			When:    c.Author.When,
		})
	}
	return commits, nil
}
