package model

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// DocumentInput is a document already split into pages.
type DocumentInput struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	URL   string      `json:"url,omitempty"`
	Pages []PageInput `json:"pages"`
}

// PageInput is the text of one page. Number starts at 1.
type PageInput struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

func (d *DocumentInput) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return goerr.Wrap(ErrConfiguration, "document id is required")
	}
	seen := make(map[int]struct{}, len(d.Pages))
	for _, p := range d.Pages {
		if p.Number < 1 {
			return goerr.Wrap(ErrInvalidInput, "page number must be positive",
				goerr.V("document_id", d.ID), goerr.V("page_number", p.Number))
		}
		if _, ok := seen[p.Number]; ok {
			return goerr.Wrap(ErrInvalidInput, "duplicate page number",
				goerr.V("document_id", d.ID), goerr.V("page_number", p.Number))
		}
		seen[p.Number] = struct{}{}
	}
	return nil
}

// PageID is the DocumentPage node id of page number n of document docID.
func PageID(docID string, n int) string {
	return docID + "#page-" + strconv.Itoa(n)
}
