package types

import "fmt"

// VectorIndex names a cosine vector index over the embedding of one node label.
type VectorIndex string

const (
	IndexTicketSemantic  VectorIndex = "ticket_semantic_index"
	IndexMessageSemantic VectorIndex = "message_semantic_index"
	IndexDocumentPage    VectorIndex = "document_page_index"
	IndexEventSemantic   VectorIndex = "event_semantic_index"
)

// AllVectorIndexes returns every index, in the order search fans out over them.
func AllVectorIndexes() []VectorIndex {
	return []VectorIndex{
		IndexTicketSemantic,
		IndexMessageSemantic,
		IndexDocumentPage,
		IndexEventSemantic,
	}
}

// IsValid checks if the index name is known
func (x VectorIndex) IsValid() bool {
	switch x {
	case IndexTicketSemantic, IndexMessageSemantic, IndexDocumentPage, IndexEventSemantic:
		return true
	default:
		return false
	}
}

// Label returns the node label the index covers. Unknown indexes return "".
func (x VectorIndex) Label() NodeLabel {
	switch x {
	case IndexTicketSemantic:
		return LabelTicket
	case IndexMessageSemantic:
		return LabelMessage
	case IndexDocumentPage:
		return LabelDocumentPage
	case IndexEventSemantic:
		return LabelEvent
	default:
		return ""
	}
}

// TextProperty is the property holding the text shown for a hit on this index.
func (x VectorIndex) TextProperty() string {
	switch x {
	case IndexTicketSemantic:
		return "summary"
	default:
		return "text"
	}
}

func (x VectorIndex) String() string {
	return string(x)
}

// ParseVectorIndex parses a string into a VectorIndex
func ParseVectorIndex(s string) (VectorIndex, error) {
	x := VectorIndex(s)
	if !x.IsValid() {
		return "", fmt.Errorf("invalid vector index: %s", s)
	}
	return x, nil
}

// IndexForLabel returns the vector index covering label, if any.
func IndexForLabel(label NodeLabel) (VectorIndex, bool) {
	for _, x := range AllVectorIndexes() {
		if x.Label() == label {
			return x, true
		}
	}
	return "", false
}
