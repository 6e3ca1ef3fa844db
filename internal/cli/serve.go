package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matzehuels/metarender/pkg/buildinfo"
	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/metadata"
	"github.com/matzehuels/metarender/pkg/namespace"
	"github.com/matzehuels/metarender/pkg/observability"
	"github.com/matzehuels/metarender/pkg/pipeline"
	"github.com/matzehuels/metarender/pkg/variant"
)

const (
	defaultAddr     = "127.0.0.1:8080"
	shutdownTimeout = 10 * time.Second
	maxRequestBody  = 1 << 20
	requestIDHeader = "X-Request-ID"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr, root string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recipe rendering over HTTP",
		Long: `Serve the render pipeline over HTTP.

  POST /v1/render   render a recipe below --root
  GET  /healthz     liveness probe

Recipe paths in requests are relative to --root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := c.loadConfig(ctx)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer runner.Close()

			srv := &server{
				runner: runner,
				root:   root,
				config: cfg,
				env:    c.Env,
				logger: logger,
			}
			return srv.serve(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address")
	cmd.Flags().StringVar(&root, "root", ".", "directory recipe paths are resolved against")
	return cmd
}

// server exposes the pipeline runner over HTTP.
type server struct {
	runner *pipeline.Runner
	root   string
	config config.Config
	env    namespace.Env
	logger *log.Logger
}

type healthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

// renderRequest is the body of POST /v1/render.
type renderRequest struct {
	Recipe     string            `json:"recipe"`
	Variants   []variant.Variant `json:"variants,omitempty"`
	NoFinalize bool              `json:"no_finalize,omitempty"`
	Refresh    bool              `json:"refresh,omitempty"`
}

// renderResponse is the body of a successful render.
type renderResponse struct {
	RunID   string                `json:"run_id"`
	Cached  bool                  `json:"cached"`
	Records []metadata.InfoRecord `json:"records"`
}

type errorResponse struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code,omitempty"`
}

// handler returns the routes of the server.
func (s *server) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/render", s.handleRender)
	})
	return r
}

// serve blocks until ctx is cancelled and in-flight requests drain.
func (s *server) serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	hs := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()
	s.logger.Info("serving", "addr", ln.Addr().String(), "root", s.root)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return ctx.Err()
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Build: buildinfo.Get()})
}

func (s *server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
		return
	}
	if err := errors.ValidatePath(req.Recipe); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := observability.WithRunID(r.Context(), r.Header.Get(requestIDHeader))
	records, cached, err := s.runner.RenderRecords(ctx, pipeline.Options{
		Recipe:     filepath.Join(s.root, filepath.FromSlash(req.Recipe)),
		Config:     s.config,
		Variants:   req.Variants,
		NoFinalize: req.NoFinalize,
		Refresh:    req.Refresh,
		Env:        s.env,
		Logger:     s.logger.With("request_id", r.Header.Get(requestIDHeader)),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderResponse{
		RunID:   observability.RunID(ctx),
		Cached:  cached,
		Records: records,
	})
}

// statusOf maps a render error onto an HTTP status.
func statusOf(err error) int {
	if stderrors.Is(err, fs.ErrNotExist) {
		return http.StatusNotFound
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInternal, "":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("render failed", "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: errors.GetCode(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestID tags every request with an X-Request-ID, keeping one sent by
// the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// observe reports every request to the server hooks.
func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.Server().OnRequest(r.Context(), r.Method, r.URL.Path, status, time.Since(start))
	})
}
