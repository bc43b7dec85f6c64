// Package gateway is the companion control plane served by `aab serve`.
// It validates requests, names uploaded objects and hands out presigned
// storage URLs. File bytes go straight to storage and never pass through it.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alchemab/aab/internal/config"
	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/logging"
	"github.com/alchemab/aab/internal/models"
)

// Backend is the object storage behind the gateway.
// *s3.Backend implements it.
type Backend interface {
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []models.CompletedPart) (string, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	PresignPutObject(ctx context.Context, key, contentType string) (string, error)
	PresignResult(ctx context.Context, prefix string) (string, error)
}

// Operation names, used as metric labels and in logs.
const (
	OpBegin        = "beginMultipartUpload"
	OpPartURL      = "getPartUploadUrl"
	OpComplete     = "completeMultipartUpload"
	OpAbort        = "abortMultipartUpload"
	OpUploadURL    = "getUploadUrl"
	OpDownloadFile = "downloadFile"
)

// Server serves the control plane routes.
type Server struct {
	cfg     config.GatewayConfig
	backend Backend
	auth    *Authenticator
	logger  *logging.Logger
	newName func(ext string) string
	handler nethttp.Handler
}

// NewServer wires the routes for cfg onto backend.
func NewServer(cfg config.GatewayConfig, backend Backend, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	suffix := cfg.KeySuffix
	if suffix == "" {
		suffix = constants.DefaultKeySuffix
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		auth:    NewAuthenticator(cfg.JWTSecret, cfg.AllowedGroups),
		logger:  logger,
		newName: func(ext string) string { return hashedName(suffix, ext) },
	}
	if s.auth == nil {
		logger.Warn().Msg("No jwt_secret configured: gateway accepts unauthenticated requests")
	}

	mux := nethttp.NewServeMux()
	s.route(mux, nethttp.MethodGet, "/get-multipart-upload-url/", OpBegin, s.handleBegin)
	s.route(mux, nethttp.MethodGet, "/get-multipart-upload-part-url/", OpPartURL, s.handlePartURL)
	s.route(mux, nethttp.MethodPost, "/complete-multipart-upload/", OpComplete, s.handleComplete)
	s.route(mux, nethttp.MethodDelete, "/abort-multipart-upload/", OpAbort, s.handleAbort)
	s.route(mux, nethttp.MethodGet, "/get-upload-url/", OpUploadURL, s.handleUploadURL)
	s.route(mux, nethttp.MethodPost, "/download-file", OpDownloadFile, s.handleDownloadFile)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
	})

	s.handler = mux
	return s
}

// route registers h for method and path, plus a CORS preflight.
func (s *Server) route(mux *nethttp.ServeMux, method, path, operation string, h nethttp.HandlerFunc) {
	allow := method + ",OPTIONS"
	mux.Handle(method+" "+path, instrument(operation, cors(allow, s.auth.middleware(h))))
	mux.Handle(nethttp.MethodOptions+" "+path, cors(allow, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusNoContent)
	})))
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() nethttp.Handler {
	return s.handler
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &nethttp.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: constants.GatewayReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("http_addr", ln.Addr().String()).Msg("Starting gateway")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("Shutting down gateway")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	<-errCh
	return nil
}

func cors(allowMethods string, next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization,x-access-token")
		h.Set("Access-Control-Allow-Methods", allowMethods)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w nethttp.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w nethttp.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
