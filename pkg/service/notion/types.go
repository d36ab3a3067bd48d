package notion

import (
	"context"
	"iter"
	"strconv"
	"strings"
	"time"
)

// Service provides interface to Notion API
type Service interface {
	// QueryUpdatedPages retrieves pages updated since the specified time from a database
	QueryUpdatedPages(ctx context.Context, dbID string, since time.Time) iter.Seq2[*Page, error]
}

// Page is a Notion page reduced to its title and plain-text blocks
type Page struct {
	ID             string
	Title          string
	Blocks         Blocks
	CreatedTime    time.Time
	LastEditedTime time.Time
	URL            string
}

// Block is one Notion block with its plain text and nested children
type Block struct {
	ID       string
	Type     string
	Text     string
	Checked  bool
	Children Blocks
}

// Blocks is a slice of Block with helper methods
type Blocks []Block

const (
	typeHeading1 = "heading_1"
	typeHeading2 = "heading_2"
	typeBulleted = "bulleted_list_item"
	typeNumbered = "numbered_list_item"
	typeToDo     = "to_do"
	typeQuote    = "quote"
	typeCallout  = "callout"
	typeDivider  = "divider"

	indentationWidth = 2
)

// Text renders blocks as plain text, one line per block, children indented.
func (b Blocks) Text() string {
	var sb strings.Builder
	b.write(&sb, 0)
	return sb.String()
}

func (b Blocks) write(sb *strings.Builder, depth int) {
	indent := strings.Repeat(" ", depth*indentationWidth)
	counter := 0

	for _, block := range b {
		if block.Type == typeNumbered {
			counter++
		} else {
			counter = 0
		}

		var line string
		switch block.Type {
		case typeDivider:
		case typeBulleted:
			line = "- " + block.Text
		case typeNumbered:
			line = strconv.Itoa(counter) + ". " + block.Text
		case typeToDo:
			if block.Checked {
				line = "[x] " + block.Text
			} else {
				line = "[ ] " + block.Text
			}
		case typeQuote, typeCallout:
			line = "> " + block.Text
		default:
			line = block.Text
		}

		if line != "" {
			for _, l := range strings.Split(line, "\n") {
				sb.WriteString(indent)
				sb.WriteString(l)
				sb.WriteString("\n")
			}
		}

		if len(block.Children) > 0 {
			block.Children.write(sb, depth+1)
		}
	}
}

// Sections splits the page at top-level heading_1 and heading_2 blocks.
// Each section starts with its heading; content before the first heading
// forms its own section. Empty sections are dropped.
func (p *Page) Sections() []string {
	var sections []string
	var current Blocks

	flush := func() {
		text := strings.TrimSpace(current.Text())
		if text != "" {
			sections = append(sections, text)
		}
		current = nil
	}

	for _, block := range p.Blocks {
		if block.Type == typeHeading1 || block.Type == typeHeading2 {
			flush()
		}
		current = append(current, block)
	}
	flush()

	return sections
}
