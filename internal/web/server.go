package web

import (
	"context"
	"net/http"

	"yoink/internal/config"
	"yoink/internal/logger"
	"yoink/internal/pipeline"
)

type Server struct {
	ctx      context.Context
	jobMgr   *JobManager
	config   config.Config
	logger   *logger.Logger
	pipeline *pipeline.Pipeline
}

func NewServer(ctx context.Context, jobMgr *JobManager, cfg config.Config, log *logger.Logger) *Server {
	return &Server{
		ctx:      ctx,
		jobMgr:   jobMgr,
		config:   cfg,
		logger:   log,
		pipeline: pipeline.New(cfg, log),
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/", http.FileServer(http.Dir("web/static")))

	// API endpoints
	mux.HandleFunc("/api/grab", s.handleGrab)
	mux.HandleFunc("/api/jobs", s.handleListJobs)
	mux.HandleFunc("/api/jobs/", s.handleJobAction)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return s.loggingMiddleware(mux)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
