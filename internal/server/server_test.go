package server

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/sheikh-saqib/fund-ledger/internal/config"
	"github.com/sheikh-saqib/fund-ledger/internal/rates"
)

func startServer(t *testing.T, handler http.Handler) (*Server, string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New(slog.New(slog.NewTextHandler(io.Discard, nil)), config.HTTPConfig{Host: "127.0.0.1"}, handler)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	return srv, ln.Addr().String(), served
}

func TestShutdownEndsLongLivedRequests(t *testing.T) {
	t.Parallel()
	var once sync.Once
	started := make(chan struct{})
	released := make(chan struct{})
	srv, addr, served := startServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			close(started)
			<-r.Context().Done()
			close(released)
		})
	}))

	go func() {
		client := &http.Client{Timeout: 5 * time.Second}
		if resp, err := client.Get("http://" + addr + "/"); err == nil {
			resp.Body.Close()
		}
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case <-released:
	default:
		t.Fatal("handler still running after shutdown")
	}
	if err := <-served; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestShutdownClosesRateStreams(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	srv, addr, served := startServer(t, api.handler)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/rates/stream?base=EUR&target=USD", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var entry rates.Entry
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("read first update: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-served; err != nil {
		t.Fatalf("serve: %v", err)
	}

	// Updates already in flight may arrive before the close frame.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Fatalf("expected a going-away close, got %v", err)
		}
		break
	}
}

func TestDBHealthService(t *testing.T) {
	t.Parallel()
	if err := (DBHealthService{}).Probe(context.Background()); err != nil {
		t.Fatalf("memory backend health: %v", err)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	health := DBHealthService{DB: db, Driver: "sqlite"}
	if err := health.Probe(context.Background()); err != nil {
		t.Fatalf("ping open db: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err = health.Probe(context.Background())
	if err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Fatalf("expected a failure naming the driver, got %v", err)
	}
}
