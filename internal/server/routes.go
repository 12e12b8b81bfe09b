package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket progress stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Profiles
	mux.HandleFunc("/api/profiles", s.app.ProfileHandler.HandleProfiles)
	mux.HandleFunc("/api/profiles/", s.app.ProfileHandler.HandleProfiles)

	// Sites
	mux.HandleFunc("/api/sites", s.app.SiteHandler.HandleSites)
	mux.HandleFunc("/api/sites/", s.app.SiteHandler.HandleSites)

	// Automation
	mux.HandleFunc("/api/automation/start", s.app.AutomationHandler.HandleStart)
	mux.HandleFunc("/api/automation/stop", s.app.AutomationHandler.HandleStop)
	mux.HandleFunc("/api/automation/stop/", s.app.AutomationHandler.HandleStop)

	// Jobs and history
	mux.HandleFunc("/api/jobs", s.app.AutomationHandler.HandleJobs)
	mux.HandleFunc("/api/jobs/", s.app.AutomationHandler.HandleJobs)
	mux.HandleFunc("/api/history", s.app.AutomationHandler.HandleHistory)

	// System
	mux.HandleFunc("/api/status", s.app.StatusHandler.HandleStatus)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HandleHealth)
	mux.HandleFunc("/api/version", s.app.StatusHandler.HandleVersion)

	// 404 for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	http.NotFound(w, r)
}
