package main

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/conversation"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service is the agent served over HTTP
type Service interface {
	Query(ctx context.Context, query string) (string, error)
	Stream(ctx context.Context, query string) (iter.Seq[string], error)
	Reset(ctx context.Context) error
	ConversationInfo() (conversation.Info, error)
	Health() agent.Health
	Tools() []tools.Description
	Hints(ctx context.Context) []string
	SetAuthContext(ctx context.Context, auth agent.AuthContext) error
}

// Headers of the authenticated user, set by the gateway
const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserPhone = "X-User-Phone"
	HeaderUserEmail = "X-User-Email"
)

const maxRequestSize = 64 * 1024

type requestIDKey struct{}

type server struct {
	svc      Service
	validate *validator.Validate
	mux      *http.ServeMux
}

func newServer(svc Service) *server {
	s := &server{
		svc:      svc,
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.health)
	s.mux.HandleFunc("POST /query", s.query)
	s.mux.HandleFunc("POST /stream", s.stream)
	s.mux.HandleFunc("POST /reset", s.reset)
	s.mux.HandleFunc("GET /conversation-info", s.conversationInfo)
	s.mux.HandleFunc("GET /tools", s.tools)
	s.mux.HandleFunc("GET /hints", s.hints)
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rid := r.Header.Get(HeaderRequestID)
	if rid == "" {
		rid = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, rid)

	started := time.Now()
	ctx := context.WithValue(r.Context(), requestIDKey{}, rid)
	s.mux.ServeHTTP(w, r.WithContext(ctx))

	logger.ContextKV(ctx, xlog.DEBUG,
		"request_id", rid,
		"method", r.Method,
		"path", r.URL.Path,
		"elapsed", time.Since(started).String())
}

func requestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Health())
}

func (s *server) query(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	answer, err := s.svc.Query(r.Context(), req.Query)
	if err != nil {
		if status, known := statusFor(err); known {
			writeError(w, r, status, err)
			return
		}
		logger.ContextKV(r.Context(), xlog.ERROR,
			"request_id", requestID(r.Context()),
			"status", "query_failed",
			"err", err.Error())
		writeJSON(w, http.StatusOK, chatmodel.QueryResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, chatmodel.QueryResponse{
		Success:  true,
		Response: answer,
	})
}

func (s *server) stream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	seq, err := s.svc.Stream(r.Context(), req.Query)
	if err != nil {
		status, _ := statusFor(err)
		writeError(w, r, status, err)
		return
	}

	sse := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	if sse {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for fragment := range seq {
		if sse {
			js, _ := json.Marshal(chatmodel.StreamChunk{Content: fragment})
			_, err = w.Write([]byte("data: " + string(js) + "\n\n"))
		} else {
			_, err = w.Write([]byte(fragment))
		}
		if err != nil {
			// client is gone, stopping the iteration cancels the query
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reset(r.Context()); err != nil {
		status, _ := statusFor(err)
		writeError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, chatmodel.StatusResponse{Success: true})
}

func (s *server) conversationInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.ConversationInfo()
	if err != nil {
		status, _ := statusFor(err)
		writeError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *server) tools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Tools())
}

func (s *server) hints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chatmodel.HintsResponse{Hints: s.svc.Hints(r.Context())})
}

// decodeQuery decodes the request and applies the authenticated user context
func (s *server) decodeQuery(w http.ResponseWriter, r *http.Request) (*chatmodel.QueryRequest, bool) {
	req := new(chatmodel.QueryRequest)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(req); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid request"))
		return nil, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, agent.ErrEmptyQuery)
		return nil, false
	}

	auth := agent.AuthContext{
		Phone: strings.TrimSpace(r.Header.Get(HeaderUserPhone)),
		Email: strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
	}
	if err := s.svc.SetAuthContext(r.Context(), auth); err != nil {
		logger.ContextKV(r.Context(), xlog.WARNING,
			"request_id", requestID(r.Context()),
			"status", "auth_context_failed",
			"err", err.Error())
	}

	logger.ContextKV(r.Context(), xlog.DEBUG,
		"request_id", requestID(r.Context()),
		"query", slices.StringUpto(req.Query, 64))
	return req, true
}

// statusFor returns the HTTP status for the agent errors
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, agent.ErrEmptyQuery):
		return http.StatusBadRequest, true
	case errors.Is(err, agent.ErrNotInitialized):
		return http.StatusServiceUnavailable, true
	case errors.Is(err, conversation.ErrBusy):
		return http.StatusConflict, true
	}
	return http.StatusInternalServerError, false
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	detail := err.Error()
	switch {
	case errors.Is(err, agent.ErrEmptyQuery):
		detail = "Query cannot be empty"
	case status == http.StatusInternalServerError:
		detail = "internal error"
	}
	writeJSON(w, status, chatmodel.ErrorResponse{
		Detail:    detail,
		RequestID: requestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
