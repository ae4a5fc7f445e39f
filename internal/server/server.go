package server

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/jypengpeng/CanvasLMS-Agent/internal/config"
)

//go:embed static
var staticFiles embed.FS

// Answerer runs one agent reasoning loop per chat message.
// *agent.Gateway implements it; tests substitute a fake.
type Answerer interface {
	Answer(ctx context.Context, message, canvasToken string, run config.RunConfig) (string, error)
}

type Server struct {
	cfg     *config.Config
	agent   Answerer
	handler http.Handler
	server  *http.Server
}

func New(cfg *config.Config, agent Answerer) (*Server, error) {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("embed static fs: %w", err)
	}

	s := &Server{cfg: cfg, agent: agent}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/tool_test", s.handleToolTest)
	s.handler = withCORS(mux)

	return s, nil
}

// Handler returns the full route tree, CORS included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[server] listening on %s", addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[server] server error: %v", err)
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.Printf("[server] shutdown error: %v", err)
			return err
		}
	}
	log.Printf("[server] stopped")
	return nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-LLM-BASE, X-LLM-KEY, X-LLM-MODEL, X-AGENT-VERBOSE, X-REQUEST-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
