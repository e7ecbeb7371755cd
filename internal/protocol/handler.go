package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/comalice/trainscope/dashboard"
	"github.com/comalice/trainscope/internal/metrics"
)

const (
	maxFramePayloadBytes   = 64 << 10
	maxDecodeErrorsPerConn = 5
	maxFramesPerSecond     = 50
	outboundBuffer         = 256
	writeTimeout           = 10 * time.Second
)

// SessionFactory opens the session behind one connection. Its output must
// go to sink.
type SessionFactory func(ctx context.Context, sink dashboard.Sink) (*dashboard.Session, error)

// Option configures the handler.
type Option func(*server)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *server) {
		if l != nil {
			s.logger = l
		}
	}
}

type server struct {
	open   SessionFactory
	logger *slog.Logger
}

// NewHandler serves /up and the dashboard WebSocket at /ws. Callers may
// register further routes on the returned mux.
func NewHandler(open SessionFactory, opts ...Option) *http.ServeMux {
	s := &server{open: open, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(s.handleConn)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

func (s *server) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()
	logger := s.logger.With("remote", conn.Request().RemoteAddr)

	pub := NewPublisher(outboundBuffer, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeFrames(conn, pub, cancel, logger)
	}()
	defer func() {
		pub.Close()
		wg.Wait()
	}()

	sess, err := s.open(ctx, pub)
	if err != nil {
		logger.Error("open dashboard session", "error", err)
		pub.Reply(errorFrame("", CodeUnavailable, "dashboard unavailable"))
		return
	}
	defer sess.Close()
	logger = logger.With("session", sess.ID())
	logger.Info("dashboard connected")

	pub.Reply(mustFrame(TypeReady, "", ReadyPayload{SessionID: sess.ID()}))
	if err := sess.Dispatch(dashboard.Command{Type: dashboard.CmdSnapshot}); err != nil {
		return
	}

	s.readFrames(ctx, conn, sess, pub, logger)
	logger.Info("dashboard disconnected")
}

// writeFrames is the only writer of conn.
func (s *server) writeFrames(conn *websocket.Conn, pub *Publisher, cancel context.CancelFunc, logger *slog.Logger) {
	enc := json.NewEncoder(conn)
	for {
		select {
		case f := <-pub.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := enc.Encode(f); err != nil {
				logger.Debug("write frame", "error", err)
				cancel()
				pub.Close()
				_ = conn.Close()
				return
			}
		case <-pub.Done():
			s.flush(enc, pub)
			return
		}
	}
}

// flush writes the frames still buffered when the connection ends, so a
// final error frame reaches the client.
func (s *server) flush(enc *json.Encoder, pub *Publisher) {
	for {
		select {
		case f := <-pub.Frames():
			if err := enc.Encode(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *server) readFrames(ctx context.Context, conn *websocket.Conn, sess *dashboard.Session, pub *Publisher, logger *slog.Logger) {
	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			var syntax *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &syntax) && !errors.As(err, &typeErr) {
				logger.Debug("read frame", "error", err)
				return
			}
			decodeErrors++
			metrics.FramesDroppedTotal.WithLabelValues("decode").Inc()
			pub.Reply(errorFrame("", CodeInvalidArgument, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			if syntax != nil {
				// The decoder cannot resynchronise after a syntax error.
				decoder = json.NewDecoder(conn)
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			metrics.FramesDroppedTotal.WithLabelValues("oversize").Inc()
			pub.Reply(errorFrame(frame.RequestID, CodeInvalidArgument, "payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			metrics.FramesDroppedTotal.WithLabelValues("rate_limit").Inc()
			pub.Reply(errorFrame(frame.RequestID, CodeResourceExhausted, "rate limit exceeded"))
			return
		}

		cmd, err := frame.Command()
		if err != nil {
			pub.Reply(commandFrameError(frame.RequestID, err))
			continue
		}
		if err := sess.Do(ctx, cmd); err != nil {
			pub.Reply(commandError(frame.RequestID, err))
			continue
		}
		pub.Reply(ackFrame(frame.RequestID))
	}
}

func commandFrameError(requestID string, err error) Frame {
	if errors.Is(err, dashboard.ErrUnknownCommand) {
		return commandError(requestID, err)
	}
	return errorFrame(requestID, CodeInvalidArgument, "invalid command payload: "+err.Error())
}
