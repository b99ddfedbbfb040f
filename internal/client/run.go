package client

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/omochice/relay-chat/internal/queue"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// Run connects a line console on in/out to the relay. It returns when the
// driver stops, after every response it produced has been printed. Reading
// from in is not interruptible, so the reader is left running if the driver
// stops first.
func Run(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	out = &syncWriter{w: out}
	requests := queue.New[protocol.Request]()
	responses := queue.New[protocol.Response]()
	defer requests.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer responses.Close()
		return NewDriver(opts).Run(gctx, requests, responses)
	})

	g.Go(func() error {
		return PrintResponses(ctx, responses, out)
	})

	go func() {
		if err := ReadCommands(in, out, requests); err != nil {
			opts.Logger.Warn().Err(err).Msg("failed to read input")
		}
	}()

	return g.Wait()
}

// syncWriter lets the printer and the input reader share one output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
