package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // single-user daemon, origin checks add nothing
	},
}

// handleWebSocket streams job state transitions to the client until the
// job reaches a terminal status. One connection watches one job.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		s.logger.Error("WebSocket connection missing job_id")
		return
	}

	updates := s.jobMgr.Subscribe(jobID)
	defer s.jobMgr.Unsubscribe(jobID, updates)

	// Push the current state first so late subscribers see where the
	// waterfall already is.
	if job, err := s.jobMgr.GetJob(jobID); err == nil {
		if !s.writeJob(conn, job) {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			if !s.writeJob(conn, job) {
				return
			}
			switch job.Status {
			case StatusCompleted, StatusFailed, StatusCancelled:
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeJob(conn *websocket.Conn, job *Job) bool {
	data, err := json.Marshal(s.jobToResponse(job))
	if err != nil {
		s.logger.Error("Failed to marshal job: %v", err)
		return true
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("Failed to write WebSocket message: %v", err)
		return false
	}
	return true
}
