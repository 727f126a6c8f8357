package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Version    string            `json:"version"`
	CPUPercent float64           `json:"cpu_percent"`
	RAMPercent float64           `json:"ram_percent"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// handleHealth handles health check requests. The service stays "healthy"
// while collaborators are down because the engine keeps answering.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := s.getSystemStats()

	resp := HealthResponse{
		Status:     "healthy",
		Service:    "varisk",
		Version:    s.version,
		CPUPercent: cpuPct,
		RAMPercent: ramPct,
		Components: map[string]string{},
		CheckedAt:  time.Now().UTC(),
	}

	if s.historyDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.historyDB.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("History database health check failed")
			resp.Components["history_db"] = "unhealthy"
			resp.Status = "degraded"
		} else {
			resp.Components["history_db"] = "ok"
		}
	}

	if s.feed != nil {
		if s.feed.IsConnected() {
			resp.Components["price_feed"] = "connected"
		} else {
			resp.Components["price_feed"] = "disconnected"
			resp.Status = "degraded"
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// getSystemStats returns CPU and RAM usage percentages
func (s *Server) getSystemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
