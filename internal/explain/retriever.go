package explain

import (
	"sort"
	"strings"
	"sync"
)

// Hit is one retrieval result referenced as evidence in an explanation.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

// Retriever finds previously indexed cases similar to a query. Implementations
// must be safe for concurrent use.
type Retriever interface {
	Index(id, text string)
	Search(query string, k int) []Hit
}

// MemoryRetriever is a token-overlap retriever backed by a map. It is the
// default when no external vector store is configured.
type MemoryRetriever struct {
	mu   sync.RWMutex
	docs map[string]string
}

// NewMemoryRetriever builds an empty in-memory retriever.
func NewMemoryRetriever() *MemoryRetriever {
	return &MemoryRetriever{docs: make(map[string]string)}
}

// Index stores or replaces a document.
func (r *MemoryRetriever) Index(id, text string) {
	if id == "" || strings.TrimSpace(text) == "" {
		return
	}
	r.mu.Lock()
	r.docs[id] = text
	r.mu.Unlock()
}

// Search ranks documents by the fraction of query tokens they contain.
func (r *MemoryRetriever) Search(query string, k int) []Hit {
	tokens := tokenize(query)
	if len(tokens) == 0 || k <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hits := make([]Hit, 0, len(r.docs))
	for id, text := range r.docs {
		docTokens := tokenize(text)
		if len(docTokens) == 0 {
			continue
		}
		docSet := make(map[string]struct{}, len(docTokens))
		for _, token := range docTokens {
			docSet[token] = struct{}{}
		}
		overlap := 0
		for _, token := range tokens {
			if _, ok := docSet[token]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		hits = append(hits, Hit{
			ID:    id,
			Score: float64(overlap) / float64(len(tokens)),
			Text:  text,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.Trim(field, ".,;:!?()[]{}\"'")
		if len(token) > 2 {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
