package github

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"os"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shurcooL/githubv4"
)

const searchPageSize = 50

type client struct {
	gql *githubv4.Client
}

// New creates a new GitHub Service using GitHub App authentication.
// privateKey can be a PEM string or a file path to a PEM file.
func New(appID, installationID int64, privateKey string) (Service, error) {
	var key []byte

	// #nosec G304 -- path comes from CLI flag, not user input
	if data, err := os.ReadFile(privateKey); err == nil {
		key = data
	} else {
		key = []byte(privateKey)
	}

	tr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport")
	}

	return &client{gql: githubv4.NewClient(&http.Client{Transport: tr})}, nil
}

// NewWithEndpoint creates a Service talking to a GraphQL endpoint with the
// given HTTP client, e.g. GitHub Enterprise or a test server.
func NewWithEndpoint(url string, httpClient *http.Client) Service {
	return &client{gql: githubv4.NewEnterpriseClient(url, httpClient)}
}

// FetchUpdatedIssues searches issues and PRs by update time
func (c *client) FetchUpdatedIssues(ctx context.Context, owner, repo string, since time.Time) iter.Seq2[*Issue, error] {
	return func(yield func(*Issue, error) bool) {
		query := fmt.Sprintf("repo:%s/%s updated:>=%s sort:updated-asc", owner, repo, since.UTC().Format("2006-01-02T15:04:05Z"))
		var cursor *githubv4.String

		for {
			var q searchIssueQuery
			variables := map[string]interface{}{
				"query":  githubv4.String(query),
				"first":  githubv4.Int(searchPageSize),
				"cursor": cursor,
			}

			if err := c.gql.Query(ctx, &q, variables); err != nil {
				yield(nil, goerr.Wrap(err, "failed to search issues",
					goerr.V("owner", owner), goerr.V("repo", repo)))
				return
			}

			for _, edge := range q.Search.Edges {
				issue := edge.Node.Issue
				if issue.UpdatedAt.Before(since) {
					continue
				}
				if !yield(convertIssue(issue, owner, repo), nil) {
					return
				}
			}

			if !q.Search.PageInfo.HasNextPage {
				return
			}
			cursor = &q.Search.PageInfo.EndCursor
		}
	}
}

// ValidateRepository checks repository accessibility and returns metadata
func (c *client) ValidateRepository(ctx context.Context, owner, repo string) (*RepositoryValidation, error) {
	var q repositoryQuery
	variables := map[string]interface{}{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
	}

	if err := c.gql.Query(ctx, &q, variables); err != nil {
		return &RepositoryValidation{
			Valid:        false,
			Owner:        owner,
			Repo:         repo,
			ErrorMessage: err.Error(),
		}, nil
	}

	r := q.Repository
	return &RepositoryValidation{
		Valid:       true,
		Owner:       owner,
		Repo:        repo,
		FullName:    fmt.Sprintf("%s/%s", owner, repo),
		Description: string(r.Description),
		IsPrivate:   bool(r.IsPrivate),
		IssueCount:  int(r.Issues.TotalCount),
	}, nil
}

// GraphQL query types

type searchIssueQuery struct {
	Search struct {
		Edges []struct {
			Node struct {
				Issue issueFragment `graphql:"... on Issue"`
			}
		}
		PageInfo pageInfo
	} `graphql:"search(query: $query, type: ISSUE, first: $first, after: $cursor)"`
}

type issueFragment struct {
	Number    githubv4.Int
	Title     githubv4.String
	Body      githubv4.String
	State     githubv4.String
	URL       githubv4.String
	CreatedAt githubv4.DateTime
	UpdatedAt githubv4.DateTime
	Author    struct {
		Login githubv4.String
	}
	Comments struct {
		Nodes []commentNode
	} `graphql:"comments(first: 100)"`
	Typename githubv4.String `graphql:"__typename"`
}

type commentNode struct {
	Author struct {
		Login githubv4.String
	}
	Body      githubv4.String
	CreatedAt githubv4.DateTime
	URL       githubv4.String
}

type pageInfo struct {
	HasNextPage bool
	EndCursor   githubv4.String
}

type repositoryQuery struct {
	Repository struct {
		Description githubv4.String
		IsPrivate   githubv4.Boolean
		Issues      struct {
			TotalCount githubv4.Int
		}
	} `graphql:"repository(owner: $owner, name: $name)"`
}

func convertIssue(issue issueFragment, owner, repo string) *Issue {
	comments := make([]Comment, 0, len(issue.Comments.Nodes))
	for _, c := range issue.Comments.Nodes {
		comments = append(comments, Comment{
			Author:    string(c.Author.Login),
			Body:      string(c.Body),
			CreatedAt: c.CreatedAt.Time,
			URL:       string(c.URL),
		})
	}

	return &Issue{
		Owner:     owner,
		Repo:      repo,
		Number:    int(issue.Number),
		Title:     string(issue.Title),
		Body:      string(issue.Body),
		Author:    string(issue.Author.Login),
		State:     string(issue.State),
		URL:       string(issue.URL),
		IsPR:      issue.Typename == "PullRequest",
		CreatedAt: issue.CreatedAt.Time,
		UpdatedAt: issue.UpdatedAt.Time,
		Comments:  comments,
	}
}
