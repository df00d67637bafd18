package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/compose-network/xdomain-relayer/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxBodyBytes    = 5 << 20
	shutdownTimeout = 5 * time.Second

	headerRequestID     = "X-Request-Id"
	headerForwardedFor  = "X-Forwarded-For"
	headerRetryAfter    = "Retry-After"
	jsonRPCVersion      = "2.0"
	contentTypeJSON     = "application/json"
	outcomeOK           = "ok"
	outcomeRejected     = "rejected"
	outcomeBackendError = "backend_error"
)

type (
	contextKey int

	rpcRequest struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}

	rpcResponse struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *rpcError       `json:"error,omitempty"`
	}

	rpcError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data,omitempty"`
	}

	// Server exposes a Router as a JSON-RPC endpoint over HTTP.
	Server struct {
		router            *Router
		http              *http.Server
		logger            *slog.Logger
		trustForwardedFor bool
	}
)

const (
	ctxKeyRequestID contextKey = iota
	ctxKeySourceIP
)

func NewServer(addr string, router *Router) *Server {
	s := &Server{
		router: router,
		logger: logger.Named("rpc_server"),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// WithTrustForwardedFor makes the first X-Forwarded-For entry the source IP. Only
// enable it behind a proxy that overwrites the header; otherwise callers pick
// their own rate limit key.
func (s *Server) WithTrustForwardedFor(trust bool) *Server {
	s.trustForwardedFor = trust
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.populateContext)

	r.Post("/", s.handleRPC)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.With("addr", s.http.Addr).Info("rpc server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve rpc: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down rpc server: %w", err)
	}

	s.logger.Info("rpc server stopped")
	return nil
}

func (s *Server) populateContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set(headerRequestID, reqID)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		ctx = context.WithValue(ctx, ctxKeySourceIP, sourceIP(r, s.trustForwardedFor))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sourceIP is the peer address, or the first X-Forwarded-For entry when the
// header is trusted.
func sourceIP(r *http.Request, trustForwardedFor bool) string {
	if xff := r.Header.Get(headerForwardedFor); trustForwardedFor && xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func SourceIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeySourceIP).(string)
	return ip
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.write(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "failed to read request body", nil))
		return
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil || len(reqs) == 0 {
			s.write(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "invalid batch request", nil))
			return
		}

		responses := make([]rpcResponse, len(reqs))
		for i := range reqs {
			responses[i], _ = s.serve(r.Context(), &reqs[i])
		}
		s.write(w, http.StatusOK, responses)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.write(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "invalid json", nil))
		return
	}

	res, retryAfter := s.serve(r.Context(), &req)
	status := http.StatusOK
	if retryAfter > 0 {
		w.Header().Set(headerRetryAfter, strconv.Itoa(int((retryAfter+time.Second-1)/time.Second)))
		status = http.StatusTooManyRequests
	}
	s.write(w, status, res)
}

// serve handles one call. A positive duration means the call was rate limited.
func (s *Server) serve(ctx context.Context, req *rpcRequest) (rpcResponse, time.Duration) {
	start := time.Now()
	method := metricMethod(req.Method)
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	log := s.logger.With("req_id", RequestID(ctx), "method", req.Method, "source_ip", SourceIP(ctx))

	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		requestsTotal.WithLabelValues(method, outcomeRejected).Inc()
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request", nil), 0
	}

	params, err := parseParams(req.Params)
	if err != nil {
		requestsTotal.WithLabelValues(method, outcomeRejected).Inc()
		return errorResponse(req.ID, CodeInvalidParams, err.Error(), nil), 0
	}

	result, err := s.router.Handle(ctx, req.Method, params, SourceIP(ctx))
	if err == nil {
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		requestsTotal.WithLabelValues(method, outcomeOK).Inc()
		return rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}, 0
	}

	if details, ok := ratelimit.Details(err); ok {
		requestsTotal.WithLabelValues(method, outcomeRejected).Inc()
		log.With("key", details.Key, "observed", details.ObservedCount).Debug("request rate limited")

		code := CodeRateLimited
		var txErr *ratelimit.TransactionLimitError
		if errors.As(err, &txErr) {
			code = CodeTransactionLimit
		}
		retry, _ := ratelimit.RetryAfter(err)
		return errorResponse(req.ID, code, err.Error(), details), max(retry, time.Millisecond)
	}

	var clientErr interface{ ErrorCode() int }
	if errors.As(err, &clientErr) {
		var (
			message = err.Error()
			data    any
			outcome = outcomeRejected
		)
		if isBackendError(err) {
			outcome = outcomeBackendError
			message = clientErr.(error).Error()
			var dataErr interface{ ErrorData() any }
			if errors.As(err, &dataErr) {
				data = dataErr.ErrorData()
			}
		}
		requestsTotal.WithLabelValues(method, outcome).Inc()
		log.With("err", err).Debug("request rejected")
		return errorResponse(req.ID, clientErr.ErrorCode(), message, data), 0
	}

	requestsTotal.WithLabelValues(method, outcomeBackendError).Inc()
	log.With("err", err).Error("failed to handle request")
	return errorResponse(req.ID, CodeInternalError, "internal error", nil), 0
}

// isBackendError reports whether the coded error came from a downstream node
// rather than from admission checks.
func isBackendError(err error) bool {
	var (
		unsupported *UnsupportedMethodError
		destination *InvalidDestinationError
		params      *InvalidParamsError
	)
	return !errors.As(err, &unsupported) && !errors.As(err, &destination) && !errors.As(err, &params)
}

func parseParams(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.New("params must be an array")
	}
	return params, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func errorResponse(id json.RawMessage, code int, message string, data any) rpcResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	}
}

func (s *Server) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.With("err", err).Warn("failed to write response")
	}
}
