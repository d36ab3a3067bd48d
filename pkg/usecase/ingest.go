package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/service/analyzer"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
)

// IngestUseCase writes an observation and the entities around it into the
// graph and links its event into the case chain.
type IngestUseCase struct {
	store    interfaces.GraphStore
	embedder interfaces.Embedder
	builder  *EventBuilder
	linker   *ChainLinker
}

func NewIngestUseCase(store interfaces.GraphStore, embedder interfaces.Embedder, builder *EventBuilder, linker *ChainLinker) *IngestUseCase {
	return &IngestUseCase{
		store:    store,
		embedder: embedder,
		builder:  builder,
		linker:   linker,
	}
}

// IngestResult is the linked event and the normalized keywords of its text
type IngestResult struct {
	Event    *model.Event `json:"event"`
	Keywords []string     `json:"keywords"`
}

// isTicketComment reports whether the source comments on a ticket-like entity
func isTicketComment(s types.Source) bool {
	return s == types.SourceJiraComment || s == types.SourceGitHubComment
}

// Ingest stores one observation. The entities around the event, its
// keywords and the chain link are committed in one transaction, so a failed
// ingest leaves nothing behind and may be retried. Entity upserts are
// idempotent merges, so ingesting the same observation again converges to
// the same graph when it carries an ExternalID.
func (uc *IngestUseCase) Ingest(ctx context.Context, obs *model.Observation) (*IngestResult, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	event, keywords, err := uc.builder.Build(ctx, obs, "")
	if err != nil {
		return nil, err
	}
	terms := analyzer.NormalizeTerms(keywords)

	w := &Writes{}

	var user *model.NodeRef
	if obs.HasEmail() {
		u := &model.User{Email: obs.User, Name: obs.UserName}
		ref := u.Ref()
		user = &ref
		w.Node(u.ToNode())
	}

	switch {
	case isTicketComment(obs.Source) || obs.Ticket != nil:
		ticket := uc.ticketNode(ctx, obs)
		w.Node(ticket)
		ref := model.NodeRef{Label: types.LabelTicket, ID: string(obs.CaseID)}
		if user != nil && isTicketComment(obs.Source) {
			w.Rel(*user, ref, types.RelCommentsOn)
		}
		w.Mentions(ref, terms)

	case obs.Source.IsChatMessage():
		msg := messageNode(obs, event)
		w.Node(msg)
		ref, _ := msg.Ref()
		if user != nil {
			w.Rel(*user, ref, types.RelSendsMessage)
		}
		w.Mentions(ref, terms)
	}

	w.Mentions(event.Ref(), terms)

	linked, err := uc.linker.Append(ctx, obs.CaseID, event, WithWrites(w))
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Info("observation ingested",
		"chain_id", obs.CaseID,
		"event_id", linked.ID,
		"source", obs.Source,
		"decision_type", linked.DecisionType,
		"keywords", len(terms),
	)

	if terms == nil {
		terms = []string{}
	}
	return &IngestResult{Event: linked, Keywords: terms}, nil
}

// ticketNode builds the Ticket of the case. The summary is embedded only
// when the source system supplied one.
func (uc *IngestUseCase) ticketNode(ctx context.Context, obs *model.Observation) *model.Node {
	props := model.Properties{model.KeyID: string(obs.CaseID)}
	node := &model.Node{Label: types.LabelTicket, Properties: props}
	if obs.Ticket == nil {
		return node
	}

	if obs.Ticket.Status != "" {
		props["status"] = obs.Ticket.Status
	}
	if obs.Ticket.URL != "" {
		props["url"] = obs.Ticket.URL
	}
	if obs.Ticket.Summary != "" {
		props["summary"] = obs.Ticket.Summary
		emb, err := uc.embedder.Embed(ctx, obs.Ticket.Summary)
		if err == nil && model.IsUsableEmbedding(emb) {
			node.Embedding = emb
		} else {
			logging.From(ctx).Warn("storing ticket without embedding", "ticket_id", obs.CaseID, "error", err)
		}
	}
	return node
}

// messageNode builds the Message of a chat observation. It shares the
// event's embedding instead of embedding the text again.
func messageNode(obs *model.Observation, event *model.Event) *model.Node {
	id := obs.ExternalID
	if id == "" {
		id = string(event.ID)
	}
	return &model.Node{
		Label: types.LabelMessage,
		Properties: model.Properties{
			model.KeyID: id,
			"text":      obs.Text,
			"user":      obs.User,
			"chain_id":  string(obs.CaseID),
			"timestamp": event.Timestamp,
		},
		Embedding: event.Embedding,
	}
}

// Writes collects node and relationship upserts that are applied together
type Writes struct {
	Nodes         []*model.Node
	Relationships []*model.Relationship
}

func (w *Writes) Node(n *model.Node) {
	w.Nodes = append(w.Nodes, n)
}

func (w *Writes) Rel(from, to model.NodeRef, typ types.RelType) {
	w.Relationships = append(w.Relationships, &model.Relationship{From: from, To: to, Type: typ})
}

// Mentions links from to the Keyword node of every term
func (w *Writes) Mentions(from model.NodeRef, terms []string) {
	for _, term := range terms {
		w.Node(model.KeywordNode(term))
		w.Rel(from, model.KeywordRef(term), types.RelMentions)
	}
}

// nodes merges repeated upserts of one node, keeping first-seen order
func (w *Writes) nodes() ([]*model.Node, error) {
	merged := make([]*model.Node, 0, len(w.Nodes))
	index := make(map[model.NodeRef]int, len(w.Nodes))
	for _, n := range w.Nodes {
		ref, err := n.Ref()
		if err != nil {
			return nil, err
		}
		if i, ok := index[ref]; ok {
			merged[i] = merged[i].Merge(n)
			continue
		}
		index[ref] = len(merged)
		merged = append(merged, n)
	}
	return merged, nil
}

// stage adds the writes to tx
func (w *Writes) stage(tx interfaces.GraphTx) error {
	nodes, err := w.nodes()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := tx.UpsertNode(n); err != nil {
			return err
		}
	}
	for _, rel := range w.Relationships {
		if err := tx.UpsertRelationship(rel); err != nil {
			return err
		}
	}
	return nil
}

// apply upserts the writes one by one, stopping at the first error
func (w *Writes) apply(ctx context.Context, store interfaces.GraphStore) error {
	nodes, err := w.nodes()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := store.UpsertNode(ctx, n); err != nil {
			return err
		}
	}
	for _, rel := range w.Relationships {
		if err := store.UpsertRelationship(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

// IngestLogResult summarizes a log ingestion
type IngestLogResult struct {
	Ingested int             `json:"ingested"`
	Chains   []model.ChainID `json:"chains"`
	Results  []*IngestResult `json:"-"`
}

// IngestLog ingests observations in order, stopping at the first failure.
// With wipe the graph is cleared first. Entries without an ExternalID get
// one derived from their position and text, so running the same log again
// links no new events.
func (uc *IngestUseCase) IngestLog(ctx context.Context, log *model.ObservationLog, wipe bool) (*IngestLogResult, error) {
	for i := range log.Observations {
		if err := log.Observations[i].Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid observation in log", goerr.V("index", i))
		}
	}

	if wipe {
		if err := uc.WipeAll(ctx); err != nil {
			return nil, err
		}
	}

	result := &IngestLogResult{Chains: []model.ChainID{}}
	seen := make(map[model.ChainID]struct{})
	for i := range log.Observations {
		obs := log.Observations[i]
		if obs.ExternalID == "" {
			obs.ExternalID = logEntryID(i, obs.Text)
		}

		r, err := uc.Ingest(ctx, &obs)
		if err != nil {
			return result, goerr.Wrap(err, "failed to ingest observation",
				goerr.V("index", i), goerr.V(ChainIDKey, obs.CaseID))
		}
		result.Ingested++
		result.Results = append(result.Results, r)
		if _, ok := seen[obs.CaseID]; !ok {
			seen[obs.CaseID] = struct{}{}
			result.Chains = append(result.Chains, obs.CaseID)
		}
	}

	return result, nil
}

// logEntryID identifies a log entry by its index and a digest of its text
func logEntryID(index int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("log:%d:%s", index, hex.EncodeToString(sum[:8]))
}

// WipeAll deletes the whole graph
func (uc *IngestUseCase) WipeAll(ctx context.Context) error {
	if err := uc.store.WipeAll(ctx); err != nil {
		return model.StorageWriteFailed(err, "failed to wipe graph")
	}
	logging.From(ctx).Warn("graph wiped")
	return nil
}

// Observation log formats
const (
	FormatJSON = "json"
	FormatTOML = "toml"
)

// LogFormatFromPath infers the log format from a file name. Anything not
// ending in .toml is read as JSON.
func LogFormatFromPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}

// DecodeObservationLog reads a log in the given format. JSON accepts either
// {"observations": [...]} or a bare array; TOML uses [[observations]] tables.
func DecodeObservationLog(r io.Reader, format string) (*model.ObservationLog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read observation log")
	}

	var log model.ObservationLog
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &log); err != nil {
			return nil, goerr.Wrap(errors.Join(model.ErrInvalidInput, err), "failed to decode TOML observation log")
		}

	case FormatJSON:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &log.Observations)
		} else {
			err = json.Unmarshal(trimmed, &log)
		}
		if err != nil {
			return nil, goerr.Wrap(errors.Join(model.ErrInvalidInput, err), "failed to decode JSON observation log")
		}

	default:
		return nil, goerr.Wrap(model.ErrConfiguration, "unknown observation log format", goerr.V("format", format))
	}

	return &log, nil
}
