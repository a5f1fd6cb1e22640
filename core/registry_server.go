package core

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RegistryServer serves the delegated discovery wire protocol on top of
// any Registry, normally a LocalRegistry. It is the first-party
// counterpart to HTTPRegistry:
//
//	POST   /agents          register (body = AgentCard)
//	GET    /agents          discover (?capabilities=a,b,c)
//	GET    /agents/{id}     get one card
//	DELETE /agents/{id}     unregister
//	GET    /health          liveness
type RegistryServer struct {
	registry Registry
	logger   Logger
	mux      *http.ServeMux
}

// NewRegistryServer creates an HTTP handler exposing the registry.
func NewRegistryServer(registry Registry, logger Logger) *RegistryServer {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	s := &RegistryServer{
		registry: registry,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/agents", s.handleAgents)
	s.mux.HandleFunc("/agents/", s.handleAgent)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *RegistryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *RegistryServer) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleRegister(w, r)
	case http.MethodGet:
		s.handleDiscover(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *RegistryServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var card AgentCard
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		s.logger.Warn("Rejecting malformed registration body", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "invalid agent card", http.StatusBadRequest)
		return
	}
	if card.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	if !s.registry.Register(r.Context(), &card) {
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, map[string]string{
		"status":   "registered",
		"agent_id": card.AgentID,
	})
}

func (s *RegistryServer) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var capabilities []string
	if raw := r.URL.Query().Get("capabilities"); raw != "" {
		for _, capability := range strings.Split(raw, ",") {
			if capability = strings.TrimSpace(capability); capability != "" {
				capabilities = append(capabilities, capability)
			}
		}
	}

	cards := s.registry.Discover(r.Context(), capabilities)
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, agentList{Agents: cards, Count: len(cards)})
}

func (s *RegistryServer) handleAgent(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimPrefix(r.URL.Path, "/agents/")
	if agentID == "" || strings.Contains(agentID, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		card := s.registry.Get(r.Context(), agentID)
		if card == nil {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		s.writeJSON(w, card)
	case http.MethodDelete:
		s.registry.Unregister(r.Context(), agentID)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *RegistryServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.registry.HealthCheck(r.Context()) {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, map[string]string{"status": "healthy"})
}

func (s *RegistryServer) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
