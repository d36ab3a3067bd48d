package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/usecase"
)

func TestPromptFor(t *testing.T) {
	resolved := newEvent("e1")
	resolved.DecisionType = types.DecisionResolution
	p := usecase.PromptFor(resolved)
	gt.Value(t, p).NotNil()
	gt.Value(t, p.Question).Equal(model.ClarificationQuestion)
	gt.Array(t, p.Options).Length(len(model.SolutionCategories))

	resolved.Clarification = "User Training"
	gt.Value(t, usecase.PromptFor(resolved)).Nil()

	gt.Value(t, usecase.PromptFor(newEvent("e2"))).Nil()
	gt.Value(t, usecase.PromptFor(nil)).Nil()
}

func TestClarificationUseCase(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*usecase.UseCases, *model.Event) {
		uc, _ := newTestUseCases()
		result, err := uc.Ingest.IngestLog(ctx, threeStepLog(), false)
		gt.NoError(t, err).Required()
		return uc, result.Results[2].Event
	}

	t.Run("pending lists resolved events", func(t *testing.T) {
		uc, resolved := setup(t)
		prompts, err := uc.Clarification.Pending(ctx, "PAY-101")
		gt.NoError(t, err).Required()
		gt.Array(t, prompts).Length(1)
		gt.Value(t, prompts[0].EventID).Equal(resolved.ID)
		gt.Value(t, prompts[0].ChainID).Equal(model.ChainID("PAY-101"))
	})

	t.Run("set once then conflict", func(t *testing.T) {
		uc, resolved := setup(t)

		updated, err := uc.Clarification.Set(ctx, resolved.ID, "  Configuration Change ")
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Clarification).Equal("Configuration Change")
		gt.Number(t, updated.Position).Equal(3)

		_, err = uc.Clarification.Set(ctx, resolved.ID, "Code Hotfix")
		gt.Error(t, err).Is(model.ErrClarificationAlreadySet)

		chain, err := uc.Chains.Read(ctx, "PAY-101")
		gt.NoError(t, err).Required()
		gt.Value(t, chain.Events[2].Clarification).Equal("Configuration Change")
		gt.Value(t, chain.Events[2].Text).Equal(resolved.Text)

		prompts, err := uc.Clarification.Pending(ctx, "PAY-101")
		gt.NoError(t, err).Required()
		gt.Array(t, prompts).Length(0)
	})

	t.Run("clarification survives re-ingest", func(t *testing.T) {
		uc, resolved := setup(t)
		_, err := uc.Clarification.Set(ctx, resolved.ID, "Code Hotfix")
		gt.NoError(t, err).Required()

		_, err = uc.Ingest.IngestLog(ctx, threeStepLog(), false)
		gt.NoError(t, err).Required()

		chain, err := uc.Chains.Read(ctx, "PAY-101")
		gt.NoError(t, err).Required()
		gt.Value(t, chain.Events[2].Clarification).Equal("Code Hotfix")
	})

	t.Run("concurrent sets succeed once", func(t *testing.T) {
		uc, resolved := setup(t)
		const n = 8

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = uc.Clarification.Set(ctx, resolved.ID, model.SolutionCategories[i%len(model.SolutionCategories)])
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			gt.Error(t, err).Is(model.ErrClarificationAlreadySet)
		}
		gt.Number(t, succeeded).Equal(1)
	})

	t.Run("unknown event", func(t *testing.T) {
		uc, _ := setup(t)
		_, err := uc.Clarification.Set(ctx, "missing", "Code Hotfix")
		gt.Error(t, err).Is(model.ErrNodeNotFound)
	})

	t.Run("empty value", func(t *testing.T) {
		uc, resolved := setup(t)
		_, err := uc.Clarification.Set(ctx, resolved.ID, " ")
		gt.Error(t, err).Is(model.ErrInvalidInput)
	})

	t.Run("unknown chain", func(t *testing.T) {
		uc, _ := setup(t)
		_, err := uc.Clarification.Pending(ctx, "NOPE")
		gt.Error(t, err).Is(model.ErrNodeNotFound)
	})
}
