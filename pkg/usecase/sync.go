package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/service/github"
	"github.com/secmon-lab/synapse/pkg/service/notion"
	"github.com/secmon-lab/synapse/pkg/utils/errutil"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const syncChannelConcurrency = 4

// SyncUseCase imports history from external systems. Every imported item
// carries an external id, so running a sync twice is harmless.
type SyncUseCase struct {
	ingest    *IngestUseCase
	documents *DocumentUseCase
	slack     *SlackUseCases
	github    github.Service
	notion    notion.Service
	pageChars int
}

func NewSyncUseCase(ingest *IngestUseCase, documents *DocumentUseCase, slack *SlackUseCases, githubService github.Service, notionService notion.Service, pageChars int) *SyncUseCase {
	return &SyncUseCase{
		ingest:    ingest,
		documents: documents,
		slack:     slack,
		github:    githubService,
		notion:    notionService,
		pageChars: pageChars,
	}
}

// SyncResult counts imported and failed items. Item failures are logged and
// do not stop a sync.
type SyncResult struct {
	mu       sync.Mutex
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

func (r *SyncResult) add(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.Failed++
		return
	}
	r.Imported++
}

// SyncGitHub imports issues and PRs of owner/repo updated since the given
// time. Each issue is a case whose Ticket is the issue; its body and
// comments become github_comment events in creation order.
func (uc *SyncUseCase) SyncGitHub(ctx context.Context, owner, repo string, since time.Time) (*SyncResult, error) {
	if uc.github == nil {
		return nil, goerr.Wrap(ErrGitHubNotConfigured, "cannot sync github")
	}

	v, err := uc.github.ValidateRepository(ctx, owner, repo)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to validate repository", goerr.V("owner", owner), goerr.V("repo", repo))
	}
	if !v.Valid {
		return nil, goerr.Wrap(model.ErrInvalidInput, "github repository is not accessible",
			goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("reason", v.ErrorMessage))
	}
	logging.From(ctx).Debug("github repository validated",
		"repository", v.FullName, "private", v.IsPrivate, "issues", v.IssueCount)

	result := &SyncResult{}
	for issue, err := range uc.github.FetchUpdatedIssues(ctx, owner, repo, since) {
		if err != nil {
			return result, goerr.Wrap(err, "failed to fetch issues", goerr.V("owner", owner), goerr.V("repo", repo))
		}

		for _, obs := range IssueObservations(issue) {
			_, err := uc.ingest.Ingest(ctx, obs)
			if err != nil {
				errutil.Handle(ctx, err, "failed to import github comment")
			}
			result.add(err)
		}
	}

	logging.From(ctx).Info("github sync finished",
		"repository", owner+"/"+repo,
		"imported", result.Imported,
		"failed", result.Failed,
	)
	return result, nil
}

// IssueObservations converts an issue into observations: the body first,
// then every non-empty comment. Only the first carries the ticket metadata.
func IssueObservations(issue *github.Issue) []*model.Observation {
	caseID := model.ChainID(issue.Key())
	ticket := &model.TicketInput{Summary: issue.Title, Status: issue.State, URL: issue.URL}

	var list []*model.Observation
	add := func(author, body, url string, at time.Time) {
		if body == "" {
			return
		}
		obs := &model.Observation{
			Source:     types.SourceGitHubComment,
			CaseID:     caseID,
			User:       author,
			UserName:   author,
			Text:       body,
			ExternalID: url,
			OccurredAt: at,
		}
		if len(list) == 0 {
			obs.Ticket = ticket
		}
		list = append(list, obs)
	}

	add(issue.Author, issue.Body, issue.URL, issue.CreatedAt)
	for _, c := range issue.Comments {
		add(c.Author, c.Body, c.URL, c.CreatedAt)
	}
	return list
}

// SyncNotion imports pages of a database edited since the given time as
// Documents, one DocumentPage per section.
func (uc *SyncUseCase) SyncNotion(ctx context.Context, databaseID string, since time.Time) (*SyncResult, error) {
	if uc.notion == nil {
		return nil, goerr.Wrap(ErrNotionNotConfigured, "cannot sync notion")
	}

	result := &SyncResult{}
	for page, err := range uc.notion.QueryUpdatedPages(ctx, databaseID, since) {
		if err != nil {
			errutil.Handle(ctx, err, "failed to fetch notion page")
			result.add(err)
			continue
		}

		doc := NewDocumentInput(page.ID, page.Title, page.URL, page.Sections(), uc.pageChars)
		_, err := uc.documents.IngestDocument(ctx, doc)
		if err != nil {
			errutil.Handle(ctx, err, "failed to import notion page")
		}
		result.add(err)
	}

	logging.From(ctx).Info("notion sync finished",
		"database_id", databaseID,
		"imported", result.Imported,
		"failed", result.Failed,
	)
	return result, nil
}

// SyncSlack imports channel history since the given time. Without channel
// ids, every channel the bot has joined is imported. Channels are imported
// concurrently; messages of one channel in order.
func (uc *SyncUseCase) SyncSlack(ctx context.Context, channelIDs []string, since time.Time) (*SyncResult, error) {
	svc := uc.slack.slackService
	if svc == nil {
		return nil, goerr.Wrap(ErrSlackNotConfigured, "cannot sync slack")
	}

	if len(channelIDs) == 0 {
		channels, err := svc.ListJoinedChannels(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list joined channels")
		}
		for _, ch := range channels {
			channelIDs = append(channelIDs, ch.ID)
		}
	}

	result := &SyncResult{}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(syncChannelConcurrency)
	for _, channelID := range channelIDs {
		eg.Go(func() error {
			msgs, err := svc.ListChannelHistory(ctx, channelID, since)
			if err != nil {
				return goerr.Wrap(err, "failed to read channel history", goerr.V("channel_id", channelID))
			}
			for i := range msgs {
				_, err := uc.slack.HandleSlackMessage(ctx, &msgs[i])
				if err != nil {
					errutil.Handle(ctx, err, "failed to import slack message")
				}
				result.add(err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return result, err
	}

	logging.From(ctx).Info("slack sync finished",
		"channels", len(channelIDs),
		"imported", result.Imported,
		"failed", result.Failed,
	)
	return result, nil
}
