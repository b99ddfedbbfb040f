package admin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omochice/relay-chat/internal/admin"
	"github.com/omochice/relay-chat/internal/observability"
	"github.com/omochice/relay-chat/internal/testutil/testlog"
)

type fakePeers []string

func (f fakePeers) Names() []string { return f }

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Healthz(t *testing.T) {
	r := admin.NewRouter(fakePeers{}, testlog.New(t))

	w := get(t, r, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestRouter_Peers(t *testing.T) {
	tests := []struct {
		name  string
		peers fakePeers
	}{
		{"empty", fakePeers{}},
		{"two peers", fakePeers{"alice", "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := admin.NewRouter(tt.peers, testlog.New(t))

			w := get(t, r, "/peers")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}

			var body struct {
				Count int      `json:"count"`
				Names []string `json:"names"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if body.Count != len(tt.peers) {
				t.Errorf("count = %d, want %d", body.Count, len(tt.peers))
			}
			if strings.Join(body.Names, ",") != strings.Join(tt.peers, ",") {
				t.Errorf("names = %v, want %v", body.Names, tt.peers)
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	observability.RecordHandshake("ok")
	r := admin.NewRouter(fakePeers{}, testlog.New(t))

	w := get(t, r, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "chatrelay_server_handshakes_total") {
		t.Error("metrics output is missing chatrelay_server_handshakes_total")
	}
}

func TestRouter_NotFound(t *testing.T) {
	r := admin.NewRouter(fakePeers{}, testlog.New(t))

	if w := get(t, r, "/nope"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- admin.Serve(ctx, addr, admin.NewRouter(fakePeers{"alice"}, testlog.New(t)), testlog.New(t))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestServe_BindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()

	err = admin.Serve(context.Background(), l.Addr().String(), http.NotFoundHandler(), testlog.New(t))
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Serve() error = %v, want a bind error", err)
	}
}
