package trace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/opd-ai/go-collide/pkg/config"
	"github.com/opd-ai/go-collide/pkg/logging"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// ErrClosed is returned by Broadcast after Close
var ErrClosed = errors.New("trace streamer closed")

// viewer is one connected websocket client
type viewer struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

// Streamer pushes frames to websocket viewers. Viewers only receive; a
// viewer whose send buffer fills up is disconnected.
type Streamer struct {
	cfg      config.TraceConfig
	logger   *logging.Logger
	upgrader websocket.Upgrader

	limiter *connLimiter

	mu      sync.Mutex
	viewers map[*viewer]struct{}
	closed  bool
	pumps   sync.WaitGroup
}

// NewStreamer creates a streamer. It serves HTTP through ServeHTTP; mount it
// at cfg.StreamPath.
func NewStreamer(cfg config.TraceConfig, logger *logging.Logger) *Streamer {
	if logger == nil {
		logger = logging.Discard()
	}
	cfg.SendBuffer = max(1, cfg.SendBuffer)
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	s := &Streamer{
		cfg:    cfg,
		logger: logger.With("component", "trace_stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
		viewers: make(map[*viewer]struct{}),
	}
	if cfg.ConnectLimit > 0 && cfg.ConnectWindow > 0 {
		s.limiter = newConnLimiter(cfg.ConnectLimit, cfg.ConnectWindow)
	}
	return s
}

// sameOrigin accepts clients without an Origin header and browsers on the
// serving host
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// Handler returns a mux serving the streamer at the configured path
func (s *Streamer) Handler() http.Handler {
	mux := http.NewServeMux()
	path := s.cfg.StreamPath
	if path == "" {
		path = "/"
	}
	mux.Handle(path, s)
	return mux
}

// ServeHTTP upgrades the request and streams frames until the viewer leaves
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	host := remoteHost(r)
	if s.limiter != nil && !s.limiter.Allow(host) {
		s.logger.Warn(ctx, "viewer connection rate limited", "remote", host)
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	if status, msg := s.admit(); status != http.StatusOK {
		http.Error(w, msg, status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(ctx, "websocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}
	v := &viewer{conn: conn, send: make(chan []byte, s.cfg.SendBuffer), remote: host}

	// another upgrade may have taken the last slot since admit
	if status, msg := s.register(v); status != http.StatusOK {
		s.logger.Warn(ctx, "viewer refused after upgrade", "remote", host, "reason", msg)
		deadline := time.Now().Add(s.cfg.WriteWait)
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, msg), deadline)
		conn.Close()
		return
	}

	s.logger.Info(ctx, "viewer connected", "remote", v.remote)
	go s.writePump(v)
	s.readPump(ctx, v)
}

// admit checks the stream can take another viewer before upgrading
func (s *Streamer) admit() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refusal()
}

// register adds v unless the stream closed or filled up meanwhile
func (s *Streamer) register(v *viewer) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, msg := s.refusal(); status != http.StatusOK {
		return status, msg
	}
	s.viewers[v] = struct{}{}
	s.pumps.Add(1)
	return http.StatusOK, ""
}

// refusal must be called with s.mu held
func (s *Streamer) refusal() (int, string) {
	switch {
	case s.closed:
		return http.StatusServiceUnavailable, "trace stream closed"
	case s.cfg.MaxViewers > 0 && len(s.viewers) >= s.cfg.MaxViewers:
		return http.StatusServiceUnavailable, "too many viewers"
	}
	return http.StatusOK, ""
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// readPump discards client messages and keeps the read deadline moving on
// pongs. It returns when the connection fails.
func (s *Streamer) readPump(ctx context.Context, v *viewer) {
	defer func() {
		s.drop(v)
		v.conn.Close()
		s.logger.Info(ctx, "viewer disconnected", "remote", v.remote)
	}()

	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn(ctx, "viewer read failed", "remote", v.remote, "error", err.Error())
			}
			return
		}
	}
}

// writePump sends queued frames and pings. A closed send channel ends the
// stream with a close message.
func (s *Streamer) writePump(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
		s.pumps.Done()
	}()

	for {
		select {
		case msg, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := v.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drop removes v and ends its write pump. Dropping twice is harmless.
func (s *Streamer) drop(v *viewer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.viewers[v]; ok {
		delete(s.viewers, v)
		close(v.send)
	}
}

// Broadcast encodes f once and queues it for every viewer
func (s *Streamer) Broadcast(f *Frame) error {
	data, err := msgpack.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", f.Tick, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for v := range s.viewers {
		select {
		case v.send <- data:
		default:
			delete(s.viewers, v)
			close(v.send)
			s.logger.Warn(context.Background(), "dropped slow viewer",
				"remote", v.remote,
				"tick", f.Tick)
		}
	}
	return nil
}

// Viewers returns the number of connected viewers
func (s *Streamer) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// Close disconnects every viewer and waits for their write pumps to finish
func (s *Streamer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.limiter != nil {
		s.limiter.Close()
	}
	for v := range s.viewers {
		delete(s.viewers, v)
		close(v.send)
	}
	s.mu.Unlock()

	s.pumps.Wait()
	return nil
}
