package usecase

import (
	"time"

	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/service/embedding"
	"github.com/secmon-lab/synapse/pkg/service/github"
	"github.com/secmon-lab/synapse/pkg/service/notion"
	"github.com/secmon-lab/synapse/pkg/service/slack"
)

type UseCases struct {
	store     interfaces.GraphStore
	embedder  interfaces.Embedder
	clock     func() time.Time
	pageChars int

	slackService  slack.Service
	githubService github.Service
	notionService notion.Service

	Events        *EventBuilder
	Chains        *ChainLinker
	Search        *SearchService
	Ingest        *IngestUseCase
	Clarification *ClarificationUseCase
	Experts       *ExpertUseCase
	Documents     *DocumentUseCase
	Debriefing    *DebriefingUseCase
	Slack         *SlackUseCases
	Sync          *SyncUseCase
}

type Option func(*UseCases)

// WithEmbedder sets the embedding provider. Without it events are stored
// without embeddings and search returns nothing.
func WithEmbedder(e interfaces.Embedder) Option {
	return func(uc *UseCases) {
		uc.embedder = e
	}
}

// WithClock replaces time.Now, for tests
func WithClock(clock func() time.Time) Option {
	return func(uc *UseCases) {
		uc.clock = clock
	}
}

// WithPageChars sets the maximum length of a synced document page
func WithPageChars(n int) Option {
	return func(uc *UseCases) {
		uc.pageChars = n
	}
}

func WithSlackService(svc slack.Service) Option {
	return func(uc *UseCases) {
		uc.slackService = svc
	}
}

func WithGitHubService(svc github.Service) Option {
	return func(uc *UseCases) {
		uc.githubService = svc
	}
}

func WithNotionService(svc notion.Service) Option {
	return func(uc *UseCases) {
		uc.notionService = svc
	}
}

func New(store interfaces.GraphStore, opts ...Option) *UseCases {
	uc := &UseCases{
		store:     store,
		embedder:  embedding.Disabled{},
		clock:     time.Now,
		pageChars: DefaultPageChars,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Events = NewEventBuilder(uc.embedder, uc.clock)
	uc.Chains = NewChainLinker(store, uc.clock)
	uc.Search = NewSearchService(store, uc.embedder)
	uc.Ingest = NewIngestUseCase(store, uc.embedder, uc.Events, uc.Chains)
	uc.Clarification = NewClarificationUseCase(store, uc.Chains)
	uc.Experts = NewExpertUseCase(store)
	uc.Documents = NewDocumentUseCase(store, uc.embedder)
	uc.Debriefing = NewDebriefingUseCase(uc.Ingest)
	uc.Slack = NewSlackUseCases(uc.Ingest, uc.slackService)
	uc.Sync = NewSyncUseCase(uc.Ingest, uc.Documents, uc.Slack, uc.githubService, uc.notionService, uc.pageChars)

	return uc
}
