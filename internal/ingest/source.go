package ingest

import "context"

// Input is one raw patch to ingest.
type Input struct {
	// ID becomes the document ID ("pr-42", "commit-<sha>"), so re-ingesting
	// the same input overwrites the stored document.
	ID    string
	Title string
	// Text is the patch as fetched, mail headers included.
	Text string
	// Metadata is merged into the indexed document's metadata.
	Metadata map[string]interface{}
}

// Source produces patches to ingest.
type Source interface {
	Patches(ctx context.Context) ([]Input, error)
}

// StaticSource serves a fixed set of inputs.
type StaticSource []Input

// Patches returns the inputs.
func (s StaticSource) Patches(_ context.Context) ([]Input, error) {
	return s, nil
}
