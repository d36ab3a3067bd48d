package types

import "fmt"

// Source is where an observation came from.
type Source string

const (
	SourceJiraComment       Source = "jira_comment"
	SourceSlackMessage      Source = "slack_message"
	SourceGitHubComment     Source = "github_comment"
	SourceNotionPage        Source = "notion_page"
	SourceDebriefingSession Source = "debriefing_session"
)

// AllSources returns all valid sources
func AllSources() []Source {
	return []Source{
		SourceJiraComment,
		SourceSlackMessage,
		SourceGitHubComment,
		SourceNotionPage,
		SourceDebriefingSession,
	}
}

// IsValid checks if the source is valid
func (s Source) IsValid() bool {
	switch s {
	case SourceJiraComment,
		SourceSlackMessage,
		SourceGitHubComment,
		SourceNotionPage,
		SourceDebriefingSession:
		return true
	default:
		return false
	}
}

// IsChatMessage reports whether observations from this source are chat messages
// (stored as Message nodes) rather than comments on a ticket.
func (s Source) IsChatMessage() bool {
	return s == SourceSlackMessage
}

func (s Source) String() string {
	return string(s)
}

// ParseSource parses a string into a Source
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.IsValid() {
		return "", fmt.Errorf("invalid source: %s", s)
	}
	return src, nil
}
