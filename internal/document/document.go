package document

// Document is one loaded document. Values are immutable once loaded; a new
// fetch produces a new Document, never a mutation.
type Document struct {
	Path       string
	RawContent string
	Metadata   *Metadata
	Body       string
}
