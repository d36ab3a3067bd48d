package model

// ClarificationQuestion is asked about resolved events that carry no clarification yet.
const ClarificationQuestion = "I see this issue was resolved. To improve our knowledge base, what was the primary solution category?"

// SolutionCategories are the suggested answers to ClarificationQuestion.
var SolutionCategories = []string{
	"Code Hotfix",
	"Configuration Change",
	"Manual Data Correction",
	"User Training",
}

// ClarificationPrompt asks a human to clarify one event.
type ClarificationPrompt struct {
	EventID  EventID  `json:"event_id"`
	ChainID  ChainID  `json:"chain_id"`
	User     string   `json:"user"`
	Text     string   `json:"text"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// NewClarificationPrompt builds the prompt for a resolved event
func NewClarificationPrompt(e *Event) *ClarificationPrompt {
	options := make([]string, len(SolutionCategories))
	copy(options, SolutionCategories)
	return &ClarificationPrompt{
		EventID:  e.ID,
		ChainID:  e.ChainID,
		User:     e.User,
		Text:     e.Text,
		Question: ClarificationQuestion,
		Options:  options,
	}
}
