package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMid "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/hanko-shell/internal/dispatch"
	mw "finitefield.org/hanko-shell/internal/middleware"
	"finitefield.org/hanko-shell/internal/session"
	"finitefield.org/hanko-shell/internal/shell"
)

const (
	renderPrefix = "/_shell/render"
	clickPath    = "/_shell/click"
	// PathHeader carries the location the shell ended up rendering.
	PathHeader = "X-Shell-Path"

	maxClickBody = 16 << 10
)

// Config configures the server.
type Config struct {
	Addr          string
	SiteDir       string
	Shell         shell.Config
	RenderTimeout time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	Sessions      *mw.Sessions
	// ShellOptions are applied to every shell built for a request.
	ShellOptions []shell.Option
}

// Server serves the static site and renders shell documents on demand.
type Server struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Server.
func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 10 * time.Second
	}
	if cfg.Sessions == nil {
		cfg.Sessions = mw.NewSessions("", "", false)
	}
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMid.RequestID)
	// RealIP trusts X-Forwarded-For; deploy behind a proxy that sets it.
	r.Use(chiMid.RealIP)
	r.Use(mw.Logger(s.logger))
	r.Use(chiMid.Recoverer)
	r.Use(chiMid.Timeout(s.cfg.RenderTimeout + 5*time.Second))
	r.Use(s.cfg.Sessions.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get(renderPrefix, s.handleRender)
	r.Get(renderPrefix+"/*", s.handleRender)
	r.Post(clickPath, s.handleClick)

	assets := mw.AssetsWithCache(s.cfg.SiteDir)
	r.Get("/*", s.handleSite(assets))
	r.Head("/*", s.handleSite(assets))
	return r
}

// HTTPServer returns a configured *http.Server for Addr.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := s.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("shell server listening", zap.String("addr", srv.Addr), zap.String("site", s.cfg.SiteDir))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpserver: shutdown: %w", err)
		}
		return nil
	}
}

// handleSite serves files from the site directory. An extensionless path
// with no regular file behind it is a client-side route: it is remembered in the
// session and the visitor is sent to the shell entry point.
func (s *Server) handleSite(assets http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + r.URL.Path)
		if clean != "/" && path.Ext(clean) == "" && !s.isFile(clean) {
			mw.GetSession(r).Set(session.RedirectKey, clean)
			http.Redirect(w, r, renderPrefix+"/", http.StatusFound)
			return
		}
		assets.ServeHTTP(w, r)
	}
}

func (s *Server) isFile(p string) bool {
	info, err := os.Stat(filepath.Join(s.cfg.SiteDir, filepath.FromSlash(p)))
	return err == nil && !info.IsDir()
}

// render builds a shell for p bound to the request session and starts it.
func (s *Server) render(ctx context.Context, r *http.Request, p string) (*shell.App, error) {
	cfg := s.cfg.Shell
	cfg.Path = p
	opts := append([]shell.Option{
		shell.WithLogger(mw.LoggerFrom(r.Context())),
		shell.WithSession(mw.GetSession(r)),
	}, s.cfg.ShellOptions...)
	app, err := shell.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	p := "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RenderTimeout)
	defer cancel()

	app, err := s.render(ctx, r, p)
	if err != nil {
		mw.LoggerFrom(r.Context()).Error("render failed", zap.String("path", p), zap.Error(err))
		mw.WriteError(w, r, http.StatusBadGateway, "render failed")
		return
	}
	defer app.Close()

	doc, err := app.HTML()
	if err != nil {
		mw.WriteError(w, r, http.StatusInternalServerError, "serialise failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(PathHeader, app.History().Path())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// ClickRequest asks the server to render Path and click Selector.
type ClickRequest struct {
	Path     string `json:"path"`
	Selector string `json:"selector"`
}

// ClickResponse reports the outcome of a click and the resulting document.
type ClickResponse struct {
	Rule           string `json:"rule,omitempty"`
	Handled        bool   `json:"handled"`
	PreventDefault bool   `json:"prevent_default"`
	Error          string `json:"error,omitempty"`
	Path           string `json:"path"`
	HTML           string `json:"html"`
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClickBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		mw.WriteError(w, r, http.StatusBadRequest, "invalid click request")
		return
	}
	if strings.TrimSpace(req.Selector) == "" {
		mw.WriteError(w, r, http.StatusBadRequest, "selector is required")
		return
	}
	if req.Path == "" {
		req.Path = "/"
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RenderTimeout)
	defer cancel()
	app, err := s.render(ctx, r, req.Path)
	if err != nil {
		mw.LoggerFrom(r.Context()).Error("render failed", zap.String("path", req.Path), zap.Error(err))
		mw.WriteError(w, r, http.StatusBadGateway, "render failed")
		return
	}
	defer app.Close()

	out, err := app.Click(ctx, req.Selector)
	if errors.Is(err, shell.ErrNoElement) {
		mw.WriteError(w, r, http.StatusNotFound, err.Error())
		return
	}
	doc, err := app.HTML()
	if err != nil {
		mw.WriteError(w, r, http.StatusInternalServerError, "serialise failed")
		return
	}
	mw.WriteJSON(w, http.StatusOK, clickResponse(out, app.History().Path(), doc))
}

func clickResponse(out dispatch.Outcome, p, doc string) ClickResponse {
	resp := ClickResponse{
		Rule:           out.Rule,
		Handled:        out.Handled,
		PreventDefault: out.PreventDefault,
		Path:           p,
		HTML:           doc,
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}
