package client_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/testutil/testlog"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, out *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("output %q does not contain %q", out.String(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRun_ChatAndQuit(t *testing.T) {
	srv := startServer(t)
	bob := connect(t, srv, "bob", client.StreamTCP)

	in, input := io.Pipe()
	defer input.Close()
	out := &lockedBuffer{}

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Run(context.Background(), client.Options{
			Addr:   srv.Addr(),
			Name:   "alice",
			Logger: testlog.New(t),
		}, in, out)
	}()

	waitForOutput(t, out, "[server] Logged in; server udp: ")
	waitForOutput(t, out, "(all) [server]: alice has joined the chat")

	if _, err := io.WriteString(input, "bob: hi bob\n"); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	bob.expectText(t, "hi bob")

	if _, err := io.WriteString(input, "quit\n"); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(timeout):
		t.Fatal("Run() did not return after quit")
	}
	bob.expectText(t, "alice has left the chat")
}

func TestRun_HandshakeFailure(t *testing.T) {
	srv := startServer(t)
	connect(t, srv, "alice", client.StreamTCP)

	out := &lockedBuffer{}
	err := client.Run(context.Background(), client.Options{
		Addr:   srv.Addr(),
		Name:   "alice",
		Logger: testlog.New(t),
	}, strings.NewReader(""), out)
	if err == nil {
		t.Fatal("Run() with a taken name should fail")
	}
}
