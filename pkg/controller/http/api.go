package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/usecase"
	"github.com/secmon-lab/synapse/pkg/utils/errutil"
	"github.com/secmon-lab/synapse/pkg/utils/safe"
)

const maxRequestBody = 4 << 20

type eventResponse struct {
	ID               model.EventID      `json:"id"`
	ChainID          model.ChainID      `json:"chain_id"`
	Position         int                `json:"position"`
	PrevID           model.EventID      `json:"prev_id,omitempty"`
	Timestamp        int64              `json:"timestamp"`
	Source           types.Source       `json:"source"`
	User             string             `json:"user"`
	UserRole         string             `json:"user_role,omitempty"`
	Text             string             `json:"text"`
	DecisionType     types.DecisionType `json:"decision_type"`
	Reasoning        string             `json:"reasoning"`
	Clarification    string             `json:"clarification,omitempty"`
	EmbeddingMissing bool               `json:"embedding_missing"`
}

func toEventResponse(e *model.Event) *eventResponse {
	return &eventResponse{
		ID:               e.ID,
		ChainID:          e.ChainID,
		Position:         e.Position,
		PrevID:           e.PrevID,
		Timestamp:        e.Timestamp,
		Source:           e.Source,
		User:             e.User,
		UserRole:         e.UserRole,
		Text:             e.Text,
		DecisionType:     e.DecisionType,
		Reasoning:        e.Reasoning,
		Clarification:    e.Clarification,
		EmbeddingMissing: e.EmbeddingMissing,
	}
}

type chainResponse struct {
	ID        model.ChainID    `json:"id"`
	State     model.ChainState `json:"state"`
	Length    int              `json:"length"`
	CreatedAt int64            `json:"created_at"`
	UpdatedAt int64            `json:"updated_at"`
	Events    []*eventResponse `json:"events"`
}

// statusOf maps domain errors to response codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrClarificationAlreadySet), errors.Is(err, model.ErrChainConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrStorageWriteFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(r.Context(), w, data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return goerr.Wrap(errors.Join(model.ErrInvalidInput, err), "invalid request body")
	}
	return nil
}

// pathID returns the unescaped {id} parameter. Case ids such as
// "owner/repo#1" arrive percent-encoded.
func pathID(r *http.Request) (string, error) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		return "", goerr.Wrap(errors.Join(model.ErrInvalidInput, err), "invalid id in path")
	}
	return id, nil
}

func observationHandler(ingest *usecase.IngestUseCase) http.HandlerFunc {
	type response struct {
		Event    *eventResponse `json:"event"`
		Keywords []string       `json:"keywords"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var obs model.Observation
		if err := decodeBody(w, r, &obs); err != nil {
			writeError(w, r, err)
			return
		}

		result, err := ingest.Ingest(r.Context(), &obs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, response{
			Event:    toEventResponse(result.Event),
			Keywords: result.Keywords,
		})
	}
}

func searchHandler(search *usecase.SearchService) http.HandlerFunc {
	type response struct {
		Query   string               `json:"query"`
		Results []model.SearchResult `json:"results"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		k := 0
		if v := r.URL.Query().Get("k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, r, goerr.Wrap(model.ErrInvalidInput, "k must be an integer", goerr.V("k", v)))
				return
			}
			k = n
		}

		results, err := search.Search(r.Context(), q, k)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, response{Query: q, Results: results})
	}
}

func chainHandler(chains *usecase.ChainLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		chain, err := chains.Read(r.Context(), model.ChainID(id))
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := chainResponse{
			ID:        chain.ID,
			State:     chain.State(),
			Length:    chain.Length,
			CreatedAt: chain.CreatedAt,
			UpdatedAt: chain.UpdatedAt,
			Events:    make([]*eventResponse, len(chain.Events)),
		}
		for i, e := range chain.Events {
			resp.Events[i] = toEventResponse(e)
		}
		writeJSON(w, r, http.StatusOK, resp)
	}
}

func pendingClarificationsHandler(clarification *usecase.ClarificationUseCase) http.HandlerFunc {
	type response struct {
		Prompts []*model.ClarificationPrompt `json:"prompts"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		prompts, err := clarification.Pending(r.Context(), model.ChainID(id))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, response{Prompts: prompts})
	}
}

func setClarificationHandler(clarification *usecase.ClarificationUseCase) http.HandlerFunc {
	type request struct {
		Value string `json:"value"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var req request
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		event, err := clarification.Set(r.Context(), model.EventID(id), req.Value)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, toEventResponse(event))
	}
}

func expertsHandler(experts *usecase.ExpertUseCase) http.HandlerFunc {
	type response struct {
		Term    string          `json:"term"`
		Experts []*model.Expert `json:"experts"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("term")
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, r, goerr.Wrap(model.ErrInvalidInput, "limit must be an integer", goerr.V("limit", v)))
				return
			}
			limit = n
		}

		list, err := experts.FindExperts(r.Context(), term, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, response{Term: term, Experts: list})
	}
}

func documentHandler(documents *usecase.DocumentUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc model.DocumentInput
		if err := decodeBody(w, r, &doc); err != nil {
			writeError(w, r, err)
			return
		}

		result, err := documents.IngestDocument(r.Context(), &doc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, result)
	}
}

func debriefingHandler(debriefing *usecase.DebriefingUseCase) http.HandlerFunc {
	type response struct {
		Events []*eventResponse `json:"events"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var d model.Debriefing
		if err := decodeBody(w, r, &d); err != nil {
			writeError(w, r, err)
			return
		}

		events, err := debriefing.RecordDebriefing(r.Context(), &d)
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := response{Events: make([]*eventResponse, len(events))}
		for i, e := range events {
			resp.Events[i] = toEventResponse(e)
		}
		writeJSON(w, r, http.StatusCreated, resp)
	}
}
