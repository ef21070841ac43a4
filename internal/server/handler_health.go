package server

import (
	"net/http"
	"runtime"
	"time"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Run       string `json:"run"`
	Store     string `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	run := "none"
	if s.status != nil {
		run = string(s.status.Snapshot().State)
		if run == "" {
			run = "pending"
		}
	}
	storeState := "disabled"
	if s.store != nil {
		storeState = "sqlite"
	}

	replyTo(w, r).data(healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Run:       run,
		Store:     storeState,
	})
}
