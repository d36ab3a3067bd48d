package github

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// Service provides interface to GitHub API for fetching repository data
type Service interface {
	// FetchUpdatedIssues returns issues and PRs updated since the given time,
	// oldest update first, each with its full comment history
	FetchUpdatedIssues(ctx context.Context, owner, repo string, since time.Time) iter.Seq2[*Issue, error]

	// ValidateRepository checks if the repository is accessible and returns metadata
	ValidateRepository(ctx context.Context, owner, repo string) (*RepositoryValidation, error)
}

// Issue represents a GitHub issue or pull request with all comments
type Issue struct {
	Owner     string
	Repo      string
	Number    int
	Title     string
	Body      string
	Author    string
	State     string
	URL       string
	IsPR      bool
	CreatedAt time.Time
	UpdatedAt time.Time
	Comments  []Comment
}

// Key returns "owner/repo#number", the case id of the issue
func (i *Issue) Key() string {
	return fmt.Sprintf("%s/%s#%d", i.Owner, i.Repo, i.Number)
}

// Comment represents a comment on a GitHub issue or PR
type Comment struct {
	Author    string
	Body      string
	CreatedAt time.Time
	URL       string
}

// RepositoryValidation holds the result of repository validation
type RepositoryValidation struct {
	Valid        bool
	Owner        string
	Repo         string
	FullName     string
	Description  string
	IsPrivate    bool
	IssueCount   int
	ErrorMessage string
}
