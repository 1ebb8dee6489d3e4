package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Write timeout for WebSocket messages.
	writeTimeout = 10 * time.Second
)

// Bridge streams every bus event as a JSON text message to websocket clients.
// It is meant to be bound to a loopback address for a local UI.
type Bridge struct {
	bus      *Bus
	upgrader websocket.Upgrader
	quit     chan struct{}
	quitOnce sync.Once
}

func NewBridge(bus *Bus) *Bridge {
	return &Bridge{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		quit: make(chan struct{}),
	}
}

func (br *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := br.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Event bridge upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	done := make(chan struct{})
	unsubscribe := br.bus.Subscribe(func(ev Event) {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			slog.Debug("Event bridge write failed", "remote", r.RemoteAddr, "error", err)
			conn.Close()
		}
	})

	slog.Debug("Event bridge client connected", "remote", r.RemoteAddr)

	// clients only listen; reading detects the close
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-br.quit:
	}
	unsubscribe()
	conn.Close()

	slog.Debug("Event bridge client disconnected", "remote", r.RemoteAddr)
}

// ListenAndServe serves the bridge on addr until ctx is done.
func (br *Bridge) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/events", br)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		br.quitOnce.Do(func() { close(br.quit) })
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("Event bridge listening", "addr", addr)

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
