package notion_test

import (
	"testing"

	"github.com/jomei/notionapi"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/synapse/pkg/service/notion"
)

func TestBlocksText(t *testing.T) {
	t.Run("list items and nesting", func(t *testing.T) {
		blocks := notion.Blocks{
			{Type: "paragraph", Text: "Runbook"},
			{Type: "numbered_list_item", Text: "Drain node", Children: notion.Blocks{
				{Type: "bulleted_list_item", Text: "check pods"},
			}},
			{Type: "numbered_list_item", Text: "Restart DB"},
			{Type: "divider"},
			{Type: "to_do", Text: "verify", Checked: true},
			{Type: "to_do", Text: "close ticket"},
			{Type: "quote", Text: "never skip step 2"},
		}

		want := "Runbook\n1. Drain node\n  - check pods\n2. Restart DB\n[x] verify\n[ ] close ticket\n> never skip step 2\n"
		gt.Value(t, blocks.Text()).Equal(want)
	})

	t.Run("numbering restarts after another block", func(t *testing.T) {
		blocks := notion.Blocks{
			{Type: "numbered_list_item", Text: "a"},
			{Type: "paragraph", Text: "break"},
			{Type: "numbered_list_item", Text: "b"},
		}
		gt.Value(t, blocks.Text()).Equal("1. a\nbreak\n1. b\n")
	})

	t.Run("multi-line text keeps indentation", func(t *testing.T) {
		blocks := notion.Blocks{
			{Type: "toggle", Text: "details", Children: notion.Blocks{
				{Type: "code", Text: "SELECT 1;\nSELECT 2;"},
			}},
		}
		gt.Value(t, blocks.Text()).Equal("details\n  SELECT 1;\n  SELECT 2;\n")
	})

	t.Run("empty blocks", func(t *testing.T) {
		gt.Value(t, notion.Blocks{}.Text()).Equal("")
	})
}

func TestPageSections(t *testing.T) {
	page := &notion.Page{
		Blocks: notion.Blocks{
			{Type: "paragraph", Text: "Intro"},
			{Type: "heading_1", Text: "Database lock"},
			{Type: "paragraph", Text: "Restart the primary."},
			{Type: "heading_3", Text: "Notes"},
			{Type: "paragraph", Text: "Minor heading stays in section."},
			{Type: "heading_2", Text: "Empty"},
			{Type: "heading_2", Text: "Escalation"},
			{Type: "paragraph", Text: "Page the DBA."},
		},
	}

	sections := page.Sections()
	gt.Array(t, sections).Length(4)
	gt.Value(t, sections[0]).Equal("Intro")
	gt.Value(t, sections[1]).Equal("Database lock\nRestart the primary.\nNotes\nMinor heading stays in section.")
	gt.Value(t, sections[2]).Equal("Empty")
	gt.Value(t, sections[3]).Equal("Escalation\nPage the DBA.")

	t.Run("page without blocks has no sections", func(t *testing.T) {
		gt.Array(t, (&notion.Page{}).Sections()).Length(0)
	})
}

func TestConvertBlock(t *testing.T) {
	block := notion.ConvertBlock(&notionapi.ToDoBlock{
		BasicBlock: notionapi.BasicBlock{ID: "b1", Type: notionapi.BlockTypeToDo},
		ToDo: notionapi.ToDo{
			RichText: []notionapi.RichText{{PlainText: "rotate "}, {PlainText: "keys"}},
			Checked:  true,
		},
	})

	gt.Value(t, block.ID).Equal("b1")
	gt.Value(t, block.Type).Equal("to_do")
	gt.Value(t, block.Text).Equal("rotate keys")
	gt.Bool(t, block.Checked).True()
}

func TestPageTitle(t *testing.T) {
	props := notionapi.Properties{
		"Status": &notionapi.StatusProperty{Status: notionapi.Status{Name: "Done"}},
		"Name":   &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "Checkout outage"}}},
	}
	gt.Value(t, notion.PageTitle(props)).Equal("Checkout outage")
	gt.Value(t, notion.PageTitle(notionapi.Properties{})).Equal("")
}
