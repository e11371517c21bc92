package domain

import "context"

// OrderExtractor pulls load/unload address pairs out of a shipping document.
// Implementations return a *ExtractionError on failure and guarantee at
// least one order on success.
type OrderExtractor interface {
	Extract(ctx context.Context, document []byte) ([]ExtractedOrder, error)
}
