package debate

import "context"

// Extraction is the structured result returned by the external
// argument-extraction collaborator.
type Extraction struct {
	Arguments []string
	Summary   string
}

// Extractor is the request/response contract with the argument-extraction
// service. Implementations may take longer than a turn; the orchestrator
// fences results with the room's VersionGuard, so slow responses are dropped
// rather than cancelled.
type Extractor interface {
	Extract(ctx context.Context, roomID, transcript string) (Extraction, error)
}
