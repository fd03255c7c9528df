package itemgen

import "context"

// Generator produces one quiz item.
type Generator interface {
	// Generate produces a validated item for in. Partial output is pushed
	// to chunks as it becomes available; chunks may be nil. Generate never
	// closes chunks and stops sending once ctx is done.
	Generate(ctx context.Context, in Input, chunks chan<- Chunk) (*Item, error)
}

// emit delivers one chunk, giving up when ctx ends.
func emit(ctx context.Context, chunks chan<- Chunk, c Chunk) error {
	if chunks == nil {
		return nil
	}
	select {
	case chunks <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
