package usecase

import (
	"context"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/service/analyzer"
)

// ExpertUseCase finds the people who talk about a topic
type ExpertUseCase struct {
	store interfaces.GraphReader
}

func NewExpertUseCase(store interfaces.GraphReader) *ExpertUseCase {
	return &ExpertUseCase{store: store}
}

// authorEdges are the edges from a User to what they wrote
var authorEdges = map[types.NodeLabel]types.RelType{
	types.LabelTicket:  types.RelCommentsOn,
	types.LabelMessage: types.RelSendsMessage,
}

// FindExperts ranks users by the number of tickets and messages they wrote
// on that mention term, most first, then by email. limit <= 0 returns all.
func (uc *ExpertUseCase) FindExperts(ctx context.Context, term string, limit int) ([]*model.Expert, error) {
	term = analyzer.NormalizeTerm(term)
	if term == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "term is empty")
	}

	keyword := model.KeywordRef(term)
	mentions, err := uc.store.ListRelationships(ctx, model.RelationshipFilter{To: &keyword, Type: types.RelMentions})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list mentions", goerr.V("term", term))
	}

	counts := make(map[string]int)
	for _, m := range mentions {
		relType, ok := authorEdges[m.From.Label]
		if !ok {
			continue
		}
		target := m.From
		authors, err := uc.store.ListRelationships(ctx, model.RelationshipFilter{
			To:        &target,
			Type:      relType,
			FromLabel: types.LabelUser,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list authors", goerr.V("node", target.String()))
		}
		seen := make(map[string]struct{}, len(authors))
		for _, a := range authors {
			if _, ok := seen[a.From.ID]; ok {
				continue
			}
			seen[a.From.ID] = struct{}{}
			counts[a.From.ID]++
		}
	}

	experts := make([]*model.Expert, 0, len(counts))
	for email, n := range counts {
		expert := &model.Expert{Email: email, Mentions: n}
		user, err := uc.store.GetNode(ctx, model.NodeRef{Label: types.LabelUser, ID: email})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get user", goerr.V("email", email))
		}
		if user != nil {
			expert.Name = user.Properties.String("name")
		}
		experts = append(experts, expert)
	}

	slices.SortFunc(experts, func(a, b *model.Expert) int {
		if a.Mentions != b.Mentions {
			return b.Mentions - a.Mentions
		}
		return strings.Compare(a.Email, b.Email)
	})

	if limit > 0 && len(experts) > limit {
		experts = experts[:limit]
	}
	return experts, nil
}
