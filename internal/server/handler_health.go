package server

import (
	"net/http"
	"runtime"
	"time"
)

// Version is the server version reported by /health.
const Version = "0.1.0"

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Scheduler string `json:"scheduler"`
	Store     string `json:"store"`
	InFlight  int    `json:"in_flight"`
	Queued    int    `json:"queued"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: "not_configured",
		Store:     "ok",
	}
	if _, err := s.store.GetExercise(r.Context(), "_health"); err != nil {
		resp.Status = "degraded"
		resp.Store = "error: " + err.Error()
	}
	if s.scheduler != nil {
		st := s.scheduler.Stats()
		resp.Scheduler = "running"
		if st.Stopped {
			resp.Scheduler = "stopped"
			resp.Status = "degraded"
		}
		resp.InFlight = st.InFlight
		for _, n := range st.Queued {
			resp.Queued += n
		}
	}
	respondOK(w, reqID, resp)
}
