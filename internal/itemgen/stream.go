package itemgen

import "context"

// Stream is a generation running in its own goroutine. Chunks must be
// drained for the generation to make progress; the channel is closed once
// the generator returns.
type Stream struct {
	chunks chan Chunk
	done   chan struct{}
	item   *Item
	err    error
}

// Start runs g.Generate in a new goroutine with a chunk buffer of the given
// size.
func Start(ctx context.Context, g Generator, in Input, buffer int) *Stream {
	s := &Stream{
		chunks: make(chan Chunk, buffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.chunks)
		s.item, s.err = g.Generate(ctx, in, s.chunks)
	}()
	return s
}

// Chunks returns the partial output channel.
func (s *Stream) Chunks() <-chan Chunk {
	return s.chunks
}

// Result waits for the generator to return.
func (s *Stream) Result() (*Item, error) {
	<-s.done
	return s.item, s.err
}
