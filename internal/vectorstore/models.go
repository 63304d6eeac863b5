package vectorstore

// Document is one unit of indexed text.
type Document struct {
	// ID is the caller's stable identifier, e.g. "pr-42" or "commit-<sha>".
	ID string

	// Content is the text that is embedded and returned on search.
	Content string

	// Metadata values may be strings, integers, floats, bools or []string.
	Metadata map[string]interface{}
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	ID      string
	Content string

	// Score is the similarity score (higher = more similar)
	Score float32

	// Metadata is decoded back to the types it was stored with; integers
	// come back as int and lists as []string.
	Metadata map[string]interface{}
}
