package types

import "fmt"

// NodeLabel is the closed set of node labels the graph accepts.
type NodeLabel string

const (
	LabelUser         NodeLabel = "User"
	LabelTicket       NodeLabel = "Ticket"
	LabelMessage      NodeLabel = "Message"
	LabelDocumentPage NodeLabel = "DocumentPage"
	LabelDocument     NodeLabel = "Document"
	LabelKeyword      NodeLabel = "Keyword"
	LabelEvent        NodeLabel = "Event"
	LabelChain        NodeLabel = "Chain"
)

// AllNodeLabels returns all valid node labels
func AllNodeLabels() []NodeLabel {
	return []NodeLabel{
		LabelUser,
		LabelTicket,
		LabelMessage,
		LabelDocumentPage,
		LabelDocument,
		LabelKeyword,
		LabelEvent,
		LabelChain,
	}
}

// IsValid checks if the label is one of the known node labels
func (l NodeLabel) IsValid() bool {
	switch l {
	case LabelUser,
		LabelTicket,
		LabelMessage,
		LabelDocumentPage,
		LabelDocument,
		LabelKeyword,
		LabelEvent,
		LabelChain:
		return true
	default:
		return false
	}
}

func (l NodeLabel) String() string {
	return string(l)
}

// ParseNodeLabel parses a string into a NodeLabel
func ParseNodeLabel(s string) (NodeLabel, error) {
	l := NodeLabel(s)
	if !l.IsValid() {
		return "", fmt.Errorf("invalid node label: %s", s)
	}
	return l, nil
}

// RelType is the closed set of relationship types.
type RelType string

const (
	RelCommentsOn   RelType = "COMMENTS_ON"
	RelSendsMessage RelType = "SENDS_MESSAGE"
	RelMentions     RelType = "MENTIONS"
	RelHasPage      RelType = "HAS_PAGE"
	RelHasEvent     RelType = "HAS_EVENT"
	RelNext         RelType = "NEXT"
)

// AllRelTypes returns all valid relationship types
func AllRelTypes() []RelType {
	return []RelType{
		RelCommentsOn,
		RelSendsMessage,
		RelMentions,
		RelHasPage,
		RelHasEvent,
		RelNext,
	}
}

// IsValid checks if the relationship type is known
func (r RelType) IsValid() bool {
	switch r {
	case RelCommentsOn,
		RelSendsMessage,
		RelMentions,
		RelHasPage,
		RelHasEvent,
		RelNext:
		return true
	default:
		return false
	}
}

func (r RelType) String() string {
	return string(r)
}

// ParseRelType parses a string into a RelType
func ParseRelType(s string) (RelType, error) {
	r := RelType(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid relationship type: %s", s)
	}
	return r, nil
}
