package web

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"yoink/internal/pipeline"
)

type GrabRequest struct {
	Link string `json:"link"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	Link        string    `json:"link"`
	Status      JobStatus `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	File        string    `json:"file,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
	StartedAt   *string   `json:"started_at,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

func (s *Server) handleGrab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GrabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Link == "" {
		http.Error(w, "Link is required", http.StatusBadRequest)
		return
	}

	job := s.jobMgr.CreateJob(req.Link)
	s.logger.Info("Created job %s for link: %s", job.ID, req.Link)

	go s.processJob(job)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.jobToResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs := s.jobMgr.ListJobs()
	responses := make([]*JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = s.jobToResponse(job)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request) {
	// Extract job ID from path: /api/jobs/{id}, /api/jobs/{id}/cancel
	// or /api/jobs/{id}/file
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	if r.Method == http.MethodGet && len(parts) == 1 {
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.jobToResponse(job))
		return
	}

	if r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "file" {
		s.handleJobFile(w, r, jobID)
		return
	}

	if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "cancel" {
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		if job.Cancel != nil {
			job.Cancel()
		}

		s.jobMgr.UpdateJob(jobID, func(j *Job) {
			j.Status = StatusCancelled
		})

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
		return
	}

	http.Error(w, "Invalid request", http.StatusBadRequest)
}

func (s *Server) handleJobFile(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := s.jobMgr.GetJob(jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if job.Status != StatusCompleted || job.Path == "" {
		http.Error(w, "Job has no file yet", http.StatusConflict)
		return
	}
	if _, err := os.Stat(job.Path); err != nil {
		http.Error(w, "File no longer available", http.StatusGone)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(job.Path)+"\"")
	http.ServeFile(w, r, job.Path)
}

func (s *Server) processJob(job *Job) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Cancel = cancel
		j.Status = StatusRunning
	})

	s.logger.Info("Starting job %s", job.ID)

	hooks := pipeline.Hooks{
		OnStatus: func(status, provider string) {
			s.jobMgr.UpdateJob(job.ID, func(j *Job) {
				j.Stage = status
				j.Provider = provider
			})
		},
		OnWarning: func(msg string) {
			s.logger.Warn("Job %s: %s", job.ID, msg)
		},
	}

	result, err := s.pipeline.Run(ctx, job.Link, hooks)
	if err != nil {
		s.logger.Error("Job %s failed: %v", job.ID, err)
		s.jobMgr.UpdateJob(job.ID, func(j *Job) {
			if j.Status != StatusCancelled {
				j.Status = StatusFailed
				j.Error = err.Error()
			}
		})
		return
	}

	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.Path = result.Path
		j.Provider = result.Audio.Source
	})

	s.logger.Info("Job %s completed: %s", job.ID, result.Path)
}

func (s *Server) jobToResponse(job *Job) *JobResponse {
	resp := &JobResponse{
		ID:        job.ID,
		Link:      job.Link,
		Status:    job.Status,
		Stage:     job.Stage,
		Provider:  job.Provider,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	if job.Status == StatusCompleted && job.Path != "" {
		resp.File = "/api/jobs/" + job.ID + "/file"
	}
	if job.StartedAt != nil {
		started := job.StartedAt.Format("2006-01-02 15:04:05")
		resp.StartedAt = &started
	}
	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format("2006-01-02 15:04:05")
		resp.CompletedAt = &completed
	}

	return resp
}
