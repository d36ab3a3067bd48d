package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/synapse/pkg/domain/types"
)

func TestNodeLabel_IsValid(t *testing.T) {
	for _, l := range types.AllNodeLabels() {
		t.Run(l.String(), func(t *testing.T) {
			gt.Bool(t, l.IsValid()).True()
		})
	}

	tests := []struct {
		name  string
		label types.NodeLabel
	}{
		{"empty", ""},
		{"lowercase", "user"},
		{"injection", "User) DETACH DELETE (n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Bool(t, tt.label.IsValid()).False()
			_, err := types.ParseNodeLabel(string(tt.label))
			gt.Error(t, err)
		})
	}
}

func TestRelType_IsValid(t *testing.T) {
	gt.Array(t, types.AllRelTypes()).Length(6)
	for _, r := range types.AllRelTypes() {
		gt.Bool(t, r.IsValid()).True()
	}
	gt.Bool(t, types.RelType("KNOWS").IsValid()).False()

	r, err := types.ParseRelType("NEXT")
	gt.NoError(t, err)
	gt.Value(t, r).Equal(types.RelNext)
}

func TestVectorIndex_Label(t *testing.T) {
	tests := []struct {
		index types.VectorIndex
		label types.NodeLabel
		text  string
	}{
		{types.IndexTicketSemantic, types.LabelTicket, "summary"},
		{types.IndexMessageSemantic, types.LabelMessage, "text"},
		{types.IndexDocumentPage, types.LabelDocumentPage, "text"},
		{types.IndexEventSemantic, types.LabelEvent, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.index.String(), func(t *testing.T) {
			gt.Value(t, tt.index.Label()).Equal(tt.label)
			gt.Value(t, tt.index.TextProperty()).Equal(tt.text)

			x, ok := types.IndexForLabel(tt.label)
			gt.Bool(t, ok).True()
			gt.Value(t, x).Equal(tt.index)
		})
	}

	_, ok := types.IndexForLabel(types.LabelKeyword)
	gt.Bool(t, ok).False()
	gt.Value(t, types.VectorIndex("unknown").Label()).Equal(types.NodeLabel(""))
}

func TestSource_Parse(t *testing.T) {
	s, err := types.ParseSource("slack_message")
	gt.NoError(t, err)
	gt.Bool(t, s.IsChatMessage()).True()
	gt.Bool(t, types.SourceJiraComment.IsChatMessage()).False()

	_, err = types.ParseSource("email")
	gt.Error(t, err)
}

func TestDecisionType_Parse(t *testing.T) {
	for _, d := range types.AllDecisionTypes() {
		parsed, err := types.ParseDecisionType(d.String())
		gt.NoError(t, err)
		gt.Value(t, parsed).Equal(d)
	}
	_, err := types.ParseDecisionType("triage")
	gt.Error(t, err)
}
