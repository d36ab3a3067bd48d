package usecase

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/service/analyzer"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultPageChars is the maximum length of a page split from longer text
const DefaultPageChars = 2000

const embedConcurrency = 4

// DocumentUseCase stores documents as pages searchable through document_page_index
type DocumentUseCase struct {
	store    interfaces.GraphStore
	embedder interfaces.Embedder
}

func NewDocumentUseCase(store interfaces.GraphStore, embedder interfaces.Embedder) *DocumentUseCase {
	return &DocumentUseCase{store: store, embedder: embedder}
}

// DocumentResult summarizes a stored document
type DocumentResult struct {
	DocumentID string `json:"document_id"`
	Pages      int    `json:"pages"`
	Embedded   int    `json:"embedded"`
	Removed    int    `json:"removed,omitempty"`
}

// IngestDocument upserts the Document, one DocumentPage per page linked by
// HAS_PAGE, and MENTIONS edges from each page to its keywords. Pages whose
// text cannot be embedded are stored without embedding. When the document
// shrank since it was last ingested, the pages past its new end are deleted.
func (uc *DocumentUseCase) IngestDocument(ctx context.Context, doc *model.DocumentInput) (*DocumentResult, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(doc.Pages))
	var eg errgroup.Group
	eg.SetLimit(embedConcurrency)
	for i, page := range doc.Pages {
		eg.Go(func() error {
			emb, err := uc.embedder.Embed(ctx, page.Text)
			if err != nil || !model.IsUsableEmbedding(emb) {
				logging.From(ctx).Warn("storing page without embedding",
					"document_id", doc.ID, "page_number", page.Number, "error", err)
				return nil
			}
			embeddings[i] = emb
			return nil
		})
	}
	_ = eg.Wait() // embedding failures degrade, never fail

	docRef := model.NodeRef{Label: types.LabelDocument, ID: doc.ID}
	w := &Writes{}

	docProps := model.Properties{
		model.KeyID:  doc.ID,
		"title":      doc.Title,
		"page_count": int64(len(doc.Pages)),
	}
	if doc.URL != "" {
		docProps["url"] = doc.URL
	}
	w.Node(&model.Node{Label: types.LabelDocument, Properties: docProps})

	result := &DocumentResult{DocumentID: doc.ID, Pages: len(doc.Pages)}
	current := make(map[model.NodeRef]struct{}, len(doc.Pages))
	for i, page := range doc.Pages {
		pageRef := model.NodeRef{Label: types.LabelDocumentPage, ID: model.PageID(doc.ID, page.Number)}
		current[pageRef] = struct{}{}
		w.Node(&model.Node{
			Label: types.LabelDocumentPage,
			Properties: model.Properties{
				model.KeyID:   pageRef.ID,
				"document_id": doc.ID,
				"title":       doc.Title,
				"page_number": int64(page.Number),
				"text":        page.Text,
			},
			Embedding: embeddings[i],
		})
		w.Rel(docRef, pageRef, types.RelHasPage)
		w.Mentions(pageRef, analyzer.NormalizeTerms(analyzer.ExtractKeywords(page.Text)))

		if embeddings[i] != nil {
			result.Embedded++
		}
	}

	if err := w.apply(ctx, uc.store); err != nil {
		return nil, model.StorageWriteFailed(err, "failed to write document", goerr.V("document_id", doc.ID))
	}

	removed, err := uc.removeStalePages(ctx, docRef, current)
	if err != nil {
		return nil, err
	}
	result.Removed = removed

	logging.From(ctx).Info("document ingested",
		"document_id", doc.ID,
		"pages", result.Pages,
		"embedded", result.Embedded,
		"removed", result.Removed,
	)
	return result, nil
}

// removeStalePages deletes the pages of a document that are not in keep
func (uc *DocumentUseCase) removeStalePages(ctx context.Context, docRef model.NodeRef, keep map[model.NodeRef]struct{}) (int, error) {
	pages, err := uc.store.ListRelationships(ctx, model.RelationshipFilter{From: &docRef, Type: types.RelHasPage})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list document pages", goerr.V("document_id", docRef.ID))
	}

	removed := 0
	for _, rel := range pages {
		if _, ok := keep[rel.To]; ok {
			continue
		}
		if err := uc.store.DeleteNode(ctx, rel.To); err != nil {
			return removed, model.StorageWriteFailed(err, "failed to delete stale page",
				goerr.V("document_id", docRef.ID), goerr.V("page_id", rel.To.ID))
		}
		removed++
	}
	return removed, nil
}

// NewDocumentInput numbers sections as pages, splitting sections longer
// than maxChars.
func NewDocumentInput(id, title, url string, sections []string, maxChars int) *model.DocumentInput {
	doc := &model.DocumentInput{ID: id, Title: title, URL: url}
	for _, section := range sections {
		for _, text := range SplitText(section, maxChars) {
			doc.Pages = append(doc.Pages, model.PageInput{Number: len(doc.Pages) + 1, Text: text})
		}
	}
	return doc
}

// SplitText cuts text into chunks of at most maxChars runes, preferring
// paragraph breaks, then line breaks, then spaces. Blank chunks are dropped.
func SplitText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultPageChars
	}

	var chunks []string
	rest := strings.TrimSpace(text)
	for rest != "" {
		if utf8.RuneCountInString(rest) <= maxChars {
			chunks = append(chunks, rest)
			break
		}

		limit := byteOffset(rest, maxChars)
		cut := -1
		for _, sep := range []string{"\n\n", "\n", " "} {
			if i := strings.LastIndex(rest[:limit], sep); i > 0 {
				cut = i
				break
			}
		}
		if cut < 0 {
			cut = limit
		}

		if chunk := strings.TrimSpace(rest[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = strings.TrimSpace(rest[cut:])
	}
	return chunks
}

// byteOffset returns the byte index just after the first n runes of s
func byteOffset(s string, n int) int {
	i := 0
	for range n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}
