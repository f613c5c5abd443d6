package web

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":         "ok",
		"open_positions": len(s.ledger.OpenPositions()),
		"time":           time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleOpenPositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.OpenPositions())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.ClosedPositions())
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.Activity())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.GetPerformanceStats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.GetPositionHealth())
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="closed_positions.csv"`)
	if err := s.ledger.ExportClosedCSV(w); err != nil {
		s.logger.Error("Failed to export closed positions", zap.Error(err))
		http.Error(w, "Failed to export closed positions", http.StatusInternalServerError)
	}
}
