package notion

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/m-mizutani/goerr/v2"
)

// client implements Service interface
type client struct {
	api *notionapi.Client
}

// New creates a new Notion service with the provided API token
func New(token string) (Service, error) {
	if token == "" {
		return nil, goerr.New("Notion API token is required")
	}

	return &client{
		api: notionapi.NewClient(
			notionapi.Token(token),
			notionapi.WithRetry(3), // HTTP 429
		),
	}, nil
}

// QueryUpdatedPages retrieves pages updated since the specified time from a database
func (c *client) QueryUpdatedPages(ctx context.Context, dbID string, since time.Time) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		var cursor notionapi.Cursor

		for {
			onOrAfter := notionapi.Date(since)
			resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), &notionapi.DatabaseQueryRequest{
				Filter: &notionapi.TimestampFilter{
					Timestamp: "last_edited_time",
					LastEditedTime: &notionapi.DateFilterCondition{
						OnOrAfter: &onOrAfter,
					},
				},
				StartCursor: cursor,
				PageSize:    100,
			})

			if err != nil {
				yield(nil, goerr.Wrap(err, "failed to query database", goerr.V("dbID", dbID), goerr.V("since", since)))
				return
			}

			for _, pageObj := range resp.Results {
				page, err := c.fetchPage(ctx, &pageObj)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}

				if !yield(page, nil) {
					return
				}
			}

			if !resp.HasMore {
				break
			}
			cursor = resp.NextCursor
		}
	}
}

func (c *client) fetchPage(ctx context.Context, pageObj *notionapi.Page) (*Page, error) {
	pageID := pageObj.ID.String()
	blocks, err := c.fetchBlocks(ctx, pageID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch page blocks", goerr.V("pageID", pageID))
	}

	return &Page{
		ID:             pageID,
		Title:          pageTitle(pageObj.Properties),
		Blocks:         blocks,
		CreatedTime:    time.Time(pageObj.CreatedTime),
		LastEditedTime: time.Time(pageObj.LastEditedTime),
		URL:            pageObj.URL,
	}, nil
}

// fetchBlocks retrieves all blocks for a page or block, including nested children
func (c *client) fetchBlocks(ctx context.Context, blockID string) (Blocks, error) {
	var blocks Blocks
	var cursor notionapi.Cursor

	for {
		resp, err := c.api.Block.GetChildren(ctx, notionapi.BlockID(blockID), &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    100,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get block children", goerr.V("blockID", blockID))
		}

		for _, blockObj := range resp.Results {
			block := convertBlock(blockObj)
			if blockObj.GetHasChildren() {
				children, err := c.fetchBlocks(ctx, blockObj.GetID().String())
				if err != nil {
					return nil, goerr.Wrap(err, "failed to fetch children blocks",
						goerr.V("blockID", blockObj.GetID()), goerr.V("blockType", blockObj.GetType()))
				}
				block.Children = children
			}
			blocks = append(blocks, block)
		}

		if !resp.HasMore {
			break
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}

	return blocks, nil
}

func convertBlock(blockObj notionapi.Block) Block {
	block := Block{
		ID:   blockObj.GetID().String(),
		Type: string(blockObj.GetType()),
	}

	switch b := blockObj.(type) {
	case *notionapi.ParagraphBlock:
		block.Text = plainText(b.Paragraph.RichText)
	case *notionapi.Heading1Block:
		block.Text = plainText(b.Heading1.RichText)
	case *notionapi.Heading2Block:
		block.Text = plainText(b.Heading2.RichText)
	case *notionapi.Heading3Block:
		block.Text = plainText(b.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		block.Text = plainText(b.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		block.Text = plainText(b.NumberedListItem.RichText)
	case *notionapi.CodeBlock:
		block.Text = plainText(b.Code.RichText)
	case *notionapi.QuoteBlock:
		block.Text = plainText(b.Quote.RichText)
	case *notionapi.CalloutBlock:
		block.Text = plainText(b.Callout.RichText)
	case *notionapi.ToggleBlock:
		block.Text = plainText(b.Toggle.RichText)
	case *notionapi.ToDoBlock:
		block.Text = plainText(b.ToDo.RichText)
		block.Checked = b.ToDo.Checked
	}

	return block
}

func plainText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, t := range rt {
		sb.WriteString(t.PlainText)
	}
	return sb.String()
}

// pageTitle returns the text of the page's title property
func pageTitle(props notionapi.Properties) string {
	for _, prop := range props {
		switch p := prop.(type) {
		case *notionapi.TitleProperty:
			return plainText(p.Title)
		}
	}
	return ""
}
