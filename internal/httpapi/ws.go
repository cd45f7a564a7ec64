package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/observer"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// connSink writes observer messages as JSON text frames. Pings share the
// connection, so every write goes through mu.
type connSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *connSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *connSink) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *connSink) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}

// observe streams the attempt log: one snapshot frame, then raw events.
func (a *API) observe(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("observer upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if a.observers != nil {
		a.observers.ObserverOpened()
		defer a.observers.ObserverClosed()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Observers never send anything we act on; reading keeps control frames
	// flowing and notices the disconnect.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	sink := &connSink{conn: conn}
	go sink.keepAlive(ctx)

	session := observer.NewSession(a.hub, a.engine, a.snapshotLimit, a.logger)
	if err := session.Serve(ctx, sink); err != nil {
		a.logger.Debug("observer session ended", zap.Error(err))
	}
}

// submitSocket accepts one JSON attempt per text frame and answers each with
// the same body the REST endpoint returns.
func (a *API) submitSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("submission socket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("submission socket closed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var body any
		var req submitRequest
		if err := decodeReader(bytes.NewReader(payload), &req); err != nil {
			_, body = serviceError(err)
		} else {
			_, body = a.submit(r.Context(), req)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			a.logger.Debug("submission socket write deadline", zap.Error(err))
			return
		}
		if err := conn.WriteJSON(body); err != nil {
			return
		}
	}
}
