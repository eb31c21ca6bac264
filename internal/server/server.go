// Package server exposes the bot over HTTP webhooks and a websocket.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/bot"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxImageBytes bounds the decoded photo size
const maxImageBytes = 10 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Bot is what the transport hands messages to
type Bot interface {
	HandleInbound(ctx context.Context, in bot.Inbound) bot.Reply
	HandleCommand(ctx context.Context, userID int64, displayName, command, args string) bot.Reply
}

// InboundPayload is a text, photo or barcode message
type InboundPayload struct {
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
	// Image is base64 encoded
	Image   string `json:"image"`
	Barcode bool   `json:"barcode"`
}

// CommandPayload is a slash command
type CommandPayload struct {
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	DisplayName string `json:"display_name"`
	Command     string `json:"command" validate:"required"`
	Args        string `json:"args"`
}

type Server struct {
	bot      Bot
	validate *validator.Validate
	log      *zap.Logger
	clients  sync.Map
}

func New(b Bot, validate *validator.Validate, log *zap.Logger) *Server {
	return &Server{bot: b, validate: validate, log: log}
}

// Routes returns the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
		r.Post("/commands", s.handleCommand)
	})
	return r
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.clients.Range(func(_, conn any) bool {
		_ = conn.(*websocket.Conn).Close()
		return true
	})
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var p InboundPayload
	if !s.decode(w, r, &p) {
		return
	}
	in, err := toInbound(p)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.bot.HandleInbound(r.Context(), in))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var p CommandPayload
	if !s.decode(w, r, &p) {
		return
	}
	writeJSON(w, http.StatusOK, s.bot.HandleCommand(r.Context(), p.UserID, p.DisplayName, p.Command, p.Args))
}

// decode reads and validates a JSON body, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.log.Warn("failed to decode json", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.log.Warn("validation failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, apperror.ValidationMessages(err))
		return false
	}
	return true
}

func toInbound(p InboundPayload) (bot.Inbound, error) {
	in := bot.Inbound{
		UserID:         p.UserID,
		DisplayName:    p.DisplayName,
		Text:           p.Text,
		IsBarcodeToken: p.Barcode,
	}
	if p.Image != "" {
		image, err := base64.StdEncoding.DecodeString(p.Image)
		if err != nil {
			return in, errors.New("invalid image format")
		}
		if len(image) > maxImageBytes {
			return in, errors.New("image too large")
		}
		in.Image = image
	}
	if in.Text == "" && len(in.Image) == 0 {
		return in, errors.New("text or image is required")
	}
	return in, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// wsMessage is the websocket frame in both directions
type wsMessage struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	s.clients.Store(clientID, conn)
	defer s.clients.Delete(clientID)
	log := s.log.With(zap.String("client_id", clientID))
	log.Debug("websocket client connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendError(conn, log, "Invalid message format")
			continue
		}
		s.handleWebSocketMessage(r.Context(), conn, log, msg)
	}
}

func (s *Server) handleWebSocketMessage(ctx context.Context, conn *websocket.Conn, log *zap.Logger, msg wsMessage) {
	switch msg.Type {
	case "message":
		var p InboundPayload
		if !s.decodeFrame(conn, log, msg.Data, &p) {
			return
		}
		in, err := toInbound(p)
		if err != nil {
			s.sendError(conn, log, err.Error())
			return
		}
		s.sendMessage(conn, log, "reply", s.bot.HandleInbound(ctx, in))

	case "command":
		var p CommandPayload
		if !s.decodeFrame(conn, log, msg.Data, &p) {
			return
		}
		s.sendMessage(conn, log, "reply", s.bot.HandleCommand(ctx, p.UserID, p.DisplayName, p.Command, p.Args))

	default:
		s.sendError(conn, log, "Unknown message type")
	}
}

func (s *Server) decodeFrame(conn *websocket.Conn, log *zap.Logger, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.sendError(conn, log, "Invalid message data")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.sendError(conn, log, "Invalid message data")
		return false
	}
	return true
}

func (s *Server) sendMessage(conn *websocket.Conn, log *zap.Logger, messageType string, data any) {
	msg := map[string]any{
		"type": messageType,
		"data": data,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn("error sending message", zap.Error(err))
	}
}

func (s *Server) sendError(conn *websocket.Conn, log *zap.Logger, message string) {
	msg := wsMessage{Type: "error", Message: message}
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn("error sending error message", zap.Error(err))
	}
}
