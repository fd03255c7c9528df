package itemgen

import (
	"context"

	"github.com/abhisek/quizforge/internal/logger"
)

// FallbackGenerator tries a primary generator once and, on any failure,
// the fallback once. It fails only when both do.
type FallbackGenerator struct {
	primary  Generator
	fallback Generator
	log      *logger.Logger

	// OnFallback, when set, is called each time the fallback path is taken.
	OnFallback func(in Input, cause error)
}

// NewFallbackGenerator wraps primary with fallback.
func NewFallbackGenerator(primary, fallback Generator, log *logger.Logger) *FallbackGenerator {
	if log == nil {
		log = logger.Nop()
	}
	return &FallbackGenerator{primary: primary, fallback: fallback, log: log}
}

func (f *FallbackGenerator) Generate(ctx context.Context, in Input, chunks chan<- Chunk) (*Item, error) {
	item, sent, perr := relay(ctx, f.primary, in, chunks, false)
	if perr == nil {
		return item, nil
	}
	// A cancelled context fails the fallback too; don't mask the cause.
	if ctx.Err() != nil {
		return nil, perr
	}

	f.log.Warn("primary generator failed, using template",
		"unit_id", in.UnitID,
		"kind", in.Kind,
		"error", perr,
	)
	if f.OnFallback != nil {
		f.OnFallback(in, perr)
	}

	item, _, ferr := relay(ctx, f.fallback, in, chunks, sent > 0)
	if ferr != nil {
		return nil, &GenerationError{Primary: perr, Fallback: ferr}
	}
	return item, nil
}

// relay runs g, forwarding its chunks to out. With reset set, the first
// forwarded chunk is flagged so consumers drop earlier partial text. It
// returns the number of chunks forwarded.
func relay(ctx context.Context, g Generator, in Input, out chan<- Chunk, reset bool) (*Item, int, error) {
	if out == nil {
		item, err := g.Generate(ctx, in, nil)
		return item, 0, err
	}

	var (
		item *Item
		err  error
	)
	inner := make(chan Chunk, cap(out))
	go func() {
		item, err = g.Generate(ctx, in, inner)
		close(inner)
	}()

	sent := 0
	for c := range inner {
		if reset && sent == 0 {
			c.Reset = true
		}
		if emit(ctx, out, c) == nil {
			sent++
		}
	}
	return item, sent, err
}
