package transport

import (
	"errors"
	"sync"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// Inbound is one decoded frame, or the error that replaced it.
type Inbound[T protocol.Frame] struct {
	Frame T
	Err   error
}

// Pump reads frames from r in its own goroutine and forwards them until done
// is closed or reading fails. With skipInvalid set, ErrInvalidData is
// forwarded but does not stop the pump. The returned channel is closed when
// the goroutine exits; wg, if non-nil, tracks it.
func Pump[T protocol.Frame](r FrameReader, c protocol.Codec, done <-chan struct{}, wg *sync.WaitGroup, skipInvalid bool) <-chan Inbound[T] {
	out := make(chan Inbound[T])
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		defer close(out)
		for {
			v, err := Receive[T](r, c)
			select {
			case out <- Inbound[T]{Frame: v, Err: err}:
			case <-done:
				return
			}
			if err != nil && !(skipInvalid && errors.Is(err, ErrInvalidData)) {
				return
			}
		}
	}()
	return out
}
