// Package mockserver is a stand-in execution service. It speaks the tutor
// wire protocol over WebSocket and answers with canned, deterministic
// results so the client can be developed and tested without a sandbox.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/code-tutor/tutor/internal/logger"
	"github.com/code-tutor/tutor/internal/metrics"
	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/code-tutor/tutor/internal/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const jobQueue = 8

// Options configures a Server.
type Options struct {
	Runner         Runner
	LineDelay      time.Duration // pause between streamed output lines
	MaxConnections int
	Logger         *slog.Logger
}

type Server struct {
	runner    Runner
	hub       *Hub
	lineDelay time.Duration
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

func NewServer(opts Options) *Server {
	if opts.Runner == nil {
		opts.Runner = ScriptRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Slog()
	}
	return &Server{
		runner:    opts.Runner,
		hub:       NewHub(opts.MaxConnections),
		lineDelay: opts.LineDelay,
		log:       opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Hub exposes the connected clients, mainly for DisconnectAll and DropAll.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
}

// Handler returns a mux serving the WebSocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade error", "err", err, "remote", r.RemoteAddr)
		return
	}

	id := r.Header.Get(transport.ClientHeader)
	if id == "" {
		id = uuid.NewString()
	}
	log := s.log.With("client_id", id, "remote", r.RemoteAddr)

	c, err := s.hub.Add(conn, id)
	if err != nil {
		log.Warn("rejecting client", "err", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlTimeout))
		conn.Close()
		return
	}
	log.Info("client connected")

	ctx, cancel := context.WithCancel(context.Background())
	jobs := make(chan protocol.Message, jobQueue)
	go s.worker(ctx, c, jobs, log)

	go func() {
		defer func() {
			cancel()
			s.hub.Remove(c)
			log.Info("client disconnected")
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg protocol.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				s.reply(c, protocol.MsgError, fmt.Sprintf("Invalid message: %v", err))
				continue
			}
			select {
			case jobs <- msg:
			default:
				s.reply(c, protocol.MsgError, "Server busy, request dropped")
			}
		}
	}()
}

// worker handles one client's requests in arrival order.
func (s *Server) worker(ctx context.Context, c *client, jobs <-chan protocol.Message, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-jobs:
			s.handle(ctx, c, msg, log)
		}
	}
}

func (s *Server) handle(ctx context.Context, c *client, msg protocol.Message, log *slog.Logger) {
	switch msg.Type {
	case protocol.MsgExecute:
		var req protocol.ExecutePayload
		if err := msg.Decode(&req); err != nil {
			s.reply(c, protocol.MsgError, err.Error())
			return
		}
		metrics.MockExecutions.WithLabelValues(string(req.Language)).Inc()
		log.Debug("execute", "language", req.Language, "bytes", len(req.Code))

		for i, res := range s.runner.Run(ctx, req) {
			if i > 0 && s.lineDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.lineDelay):
				}
			}
			if !s.reply(c, res.Type, res.Text) {
				return
			}
		}

	case protocol.MsgExplain:
		var req protocol.ExplainPayload
		if err := msg.Decode(&req); err != nil {
			s.reply(c, protocol.MsgError, err.Error())
			return
		}
		log.Debug("explain", "bytes", len(req.Code))
		s.reply(c, protocol.MsgExplanation, s.runner.Explain(req))

	default:
		s.reply(c, protocol.MsgError, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (s *Server) reply(c *client, t protocol.MessageType, text string) bool {
	msg, err := protocol.New(t, text)
	if err != nil {
		s.log.Error("encode reply", "err", err)
		return false
	}
	return s.hub.Send(c, msg)
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("mock server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.DisconnectAll()
		return srv.Shutdown(shutdownCtx)
	}
}
