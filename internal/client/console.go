package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/omochice/relay-chat/internal/queue"
	"github.com/omochice/relay-chat/pkg/protocol"
)

const usage = `commands: "receiver: text", "udp receiver: text", "all: text", quit`

// ReadCommands parses lines from in and pushes the resulting requests. On quit
// or end of input it pushes SignOut and closes requests. Invalid lines are
// reported on out and skipped.
func ReadCommands(in io.Reader, out io.Writer, requests *queue.Queue[protocol.Request]) error {
	defer requests.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			fmt.Fprintln(out, usage)
			continue
		}

		if err := requests.Push(cmd.Request()); err != nil {
			// The driver is gone.
			return nil
		}
		if cmd.Quit {
			return nil
		}
	}

	_ = requests.Push(protocol.SignOut{})
	return scanner.Err()
}

// PrintResponses writes each response on its own line until responses is
// closed and drained or ctx is done. A failed write closes responses so the
// driver stops with ErrBrokenPipe.
func PrintResponses(ctx context.Context, responses *queue.Queue[protocol.Response], out io.Writer) error {
	for {
		resp, err := responses.Recv(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return err
		}
		if _, err := fmt.Fprintln(out, resp); err != nil {
			responses.Close()
			return fmt.Errorf("failed to print response: %w", err)
		}
	}
}
