package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/amaos/pkg/model"
)

type healthResponse struct {
	Status    string             `json:"status"`
	Version   string             `json:"version"`
	GoVersion string             `json:"go_version"`
	Uptime    string             `json:"uptime"`
	Scheduler string             `json:"scheduler"`
	Journal   string             `json:"journal"`
	Tasks     int                `json:"tasks"`
	Live      map[model.Kind]int `json:"live,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	journal := "disabled"
	if s.store != nil {
		journal = "enabled"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: s.schedulerState(),
		Journal:   journal,
		Tasks:     s.kernel.QueueLen(),
		Live:      s.kernel.Live(),
	})
}
