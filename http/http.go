package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes meter status and prometheus metrics.
type Server struct {
	server *http.Server
	board  *Board
	logger *zap.Logger
}

// NewServer …
func NewServer(addr string, board *Board, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{board: board, logger: logger}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", s.logHandler(http.HandlerFunc(health)))
	mux.Handle("/api/", s.logHandler(http.StripPrefix("/api/", http.HandlerFunc(s.api))))
	mux.Handle("/api", s.logHandler(http.HandlerFunc(s.list)))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts listening and blocks until ctx is cancelled or the server stops.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down http server")
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func health(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// list links every meter
func (s *Server) list(w http.ResponseWriter, req *http.Request) {
	cacheHeader(w)

	link := *req.URL
	link.Scheme = "http"
	link.Host = req.Host
	link.RawQuery = ""
	link.Fragment = ""
	var rtext string
	for _, name := range s.board.Names() {
		link.Path = "/api/" + url.PathEscape(name)
		w.Header().Add("Link", fmt.Sprintf("<%s>; rel=alternate", link.String()))
		rtext += fmt.Sprintf("%s\n", link.String())
	}

	if _, err := io.WriteString(w, rtext); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

// api serves /api/<meter> as JSON and /api/<meter>/<field> as plain value
func (s *Server) api(w http.ResponseWriter, req *http.Request) {
	rm := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	name := rm[0]
	if name == "" {
		http.NotFound(w, req)
		return
	}

	st, ok := s.board.Get(name)
	if !ok {
		http.NotFound(w, req)
		return
	}
	cacheHeader(w)

	if len(rm) < 2 {
		writeJSON(w, http.StatusOK, st)
		return
	}

	v, ok := st.Fields[rm[1]]
	if !ok {
		http.NotFound(w, req)
		return
	}
	var rtext string
	switch f := v.(type) {
	case float64:
		rtext = fmt.Sprintf("%.3f", f)
	default:
		rtext = fmt.Sprintf("%v", f)
	}
	if _, err := io.WriteString(w, rtext); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

// logHandler …
func (s *Server) logHandler(h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("proto", r.Proto),
			zap.String("user_agent", r.UserAgent()),
		)
		h.ServeHTTP(w, r)
	}
}

// cacheHeader …
func cacheHeader(w http.ResponseWriter) {
	w.Header().Add("Cache-Control", "must-revalidate, private, max-age=20")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
