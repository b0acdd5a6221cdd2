package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vultuk/whatsapp-translator/internal/constants"
	"github.com/vultuk/whatsapp-translator/internal/database"
	"github.com/vultuk/whatsapp-translator/internal/errors"
	"github.com/vultuk/whatsapp-translator/internal/models"
	"github.com/vultuk/whatsapp-translator/internal/service"
	"github.com/vultuk/whatsapp-translator/internal/tracing"
	"github.com/vultuk/whatsapp-translator/pkg/bridge"
	"github.com/vultuk/whatsapp-translator/pkg/bridge/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Server exposes the conversation store and bridge operations over HTTP.
type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	db       *database.Database
	sup      *bridge.Supervisor
	recorder *service.MessageRecorder
	hub      *Hub
	server   *http.Server
	cfg      models.ServerConfig
}

func NewServer(cfg models.ServerConfig, db *database.Database, sup *bridge.Supervisor, recorder *service.MessageRecorder, hub *Hub, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		db:       db,
		sup:      sup,
		recorder: recorder,
		hub:      hub,
		cfg:      cfg,
	}

	s.router.Use(s.tracingMiddleware)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	api.HandleFunc("/contacts", s.handleContacts()).Methods(http.MethodGet)
	api.HandleFunc("/contacts/{id}/messages", s.handleMessages()).Methods(http.MethodGet)
	api.HandleFunc("/contacts/{id}/read", s.handleMarkRead()).Methods(http.MethodPost)
	api.HandleFunc("/contacts/{id}/avatar", s.handleAvatar()).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleSendMessage()).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.hub.ServeWS)
}

func (s *Server) Start() error {
	host := s.cfg.Host
	port := s.cfg.Port
	if port == 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path))
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnf("Failed to encode response: %v", err)
	}
}

// writeError maps application error codes onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeNotConnected:
		status = http.StatusServiceUnavailable
	case errors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrCodeValidationFailed, errors.ErrCodeMediaTooLarge:
		status = http.StatusBadRequest
	case errors.ErrCodeProcessExited, errors.ErrCodeTransport:
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Handler implementations
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.db.GetStats(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"connectionState": s.sup.State(),
			"pendingRequests": s.sup.PendingRequests(),
			"store":           stats,
		})
	}
}

func (s *Server) handleContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contacts, err := s.db.GetContacts(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, contacts)
	}
}

func (s *Server) handleMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contactID := mux.Vars(r)["id"]
		messages, err := s.db.GetMessages(r.Context(), contactID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, messages)
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contactID := mux.Vars(r)["id"]
		if err := s.db.MarkRead(r.Context(), contactID); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleAvatar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contactID := mux.Vars(r)["id"]
		pic, err := s.sup.GetProfilePicture(r.Context(), contactID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, pic)
	}
}

type sendMessageRequest struct {
	To        string `json:"to"`
	Text      string `json:"text,omitempty"`
	ReplyTo   string `json:"replyTo,omitempty"`
	MediaData string `json:"mediaData,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.To == "" {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recipient is required"})
			return
		}

		var content types.MessageContent
		var result *types.SendResultEvent
		var err error
		if req.MediaData != "" {
			content = types.MessageContent{
				Type:      types.ContentImage,
				MimeType:  req.MimeType,
				Caption:   req.Caption,
				MediaData: req.MediaData,
			}
			result, err = s.sup.SendImage(r.Context(), req.To, req.MediaData, req.MimeType, req.Caption)
		} else if req.Text != "" {
			content = types.MessageContent{Type: types.ContentText, Body: req.Text}
			result, err = s.sup.SendText(r.Context(), req.To, req.Text, req.ReplyTo)
		} else {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text or mediaData is required"})
			return
		}
		if err != nil {
			s.writeError(w, err)
			return
		}

		// The provider never echoes its own sends back as message
		// events, so a confirmed send is stored here.
		if result.Success {
			if err := s.recorder.RecordOutbound(r.Context(), req.To, content, result); err != nil {
				s.logger.WithError(err).WithField("message_id", result.MessageID).Error("Failed to persist sent message")
			}
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}
