// Package codesearch implements the SemanticIndex collaborator behind the
// code_search tool, backed by github.com/philippgille/chromem-go — an
// embedded, in-process vector store requiring no external service,
// matching this runtime's single-process non-goal (spec.md §1). Grounded
// on the retrieval pack's use of chromem-go for local embedding search.
package codesearch

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"

	"github.com/codeforge/assistant/runtime/apperr"
)

// EmbedFunc produces an embedding vector for a chunk of text. Production
// wiring supplies an LLM-provider-backed embedder; tests supply a
// deterministic stub.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Index wraps one chromem-go collection per session, scoped by
// collection name so sessions never cross-contaminate search results.
type Index struct {
	db *chromem.DB
}

// New constructs an in-memory chromem-go index. chromem-go also supports a
// persistent backing file; this runtime uses the in-memory form since
// workspace content is re-indexed per workflow run rather than durably
// retained across restarts (code_search operates over the live workspace,
// not a separate corpus).
func New() *Index {
	return &Index{db: chromem.NewDB()}
}

func collectionName(sessionID string) string { return "session-" + sessionID }

// IndexFile upserts one file's content as a single document keyed by its
// relative path. Re-indexing the same path replaces the prior embedding.
func (idx *Index) IndexFile(ctx context.Context, sessionID, relPath, content string, embed EmbedFunc) error {
	col, err := idx.db.GetOrCreateCollection(collectionName(sessionID), nil, chromem.NewEmbeddingFuncDefault())
	if err != nil {
		return apperr.Wrap(apperr.KindPermanent, "code_search index open failed", err)
	}
	doc := chromem.Document{
		ID:      relPath,
		Content: content,
	}
	if embed != nil {
		vec, err := embed(ctx, content)
		if err != nil {
			return apperr.Wrap(apperr.KindTransient, "embedding failed", err)
		}
		doc.Embedding = vec
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return apperr.Wrap(apperr.KindPermanent, "code_search index write failed", err)
	}
	return nil
}

// Match is one search hit.
type Match struct {
	RelativePath string
	Content      string
	Score        float32
}

// Search returns the topK most similar indexed files to query.
func (idx *Index) Search(ctx context.Context, sessionID, query string, topK int) ([]Match, error) {
	col := idx.db.GetCollection(collectionName(sessionID), chromem.NewEmbeddingFuncDefault())
	if col == nil {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}
	n := topK
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}
	results, err := col.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, fmt.Sprintf("code_search query failed for session %s", sessionID), err)
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, Match{RelativePath: r.ID, Content: r.Content, Score: r.Similarity})
	}
	return out, nil
}
