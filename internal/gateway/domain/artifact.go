package domain

// Source records where an artifact came from.
type Source string

const (
	SourceUpstream Source = "upstream"
	SourceFallback Source = "fallback"
)

// Artifact is the protected content, delivered as-is.
type Artifact struct {
	Body   []byte
	Source Source
}
