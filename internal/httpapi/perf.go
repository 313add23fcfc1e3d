package httpapi

import "net/http"

func (s *Server) handlePerfNegotiation(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Negotiation())
}
