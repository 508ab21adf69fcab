package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campuskit/campus/pkg/plugin"
)

type installRequest struct {
	PluginID string `json:"pluginId"`
}

type settingsRequest struct {
	Settings map[string]any `json:"settings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PluginID == "" {
		writeError(w, http.StatusBadRequest, "request body must carry a pluginId")
		return
	}

	record, err := s.service.Install(r.Context(), tenantID, req.PluginID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request, tenantID string) {
	record, err := s.service.Enable(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request, tenantID string) {
	record, err := s.service.Disable(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Settings == nil {
		writeError(w, http.StatusBadRequest, "request body must carry a settings object")
		return
	}

	record, err := s.service.UpdateSettings(r.Context(), tenantID, r.PathValue("id"), req.Settings)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request, tenantID string) {
	if err := s.service.Uninstall(r.Context(), tenantID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListInstalled(w http.ResponseWriter, r *http.Request, tenantID string) {
	records, err := s.service.ListInstalled(r.Context(), tenantID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []plugin.InstalledPlugin{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleMarketplace(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Marketplace(r.Context(), r.URL.Query().Get("category"), r.URL.Query().Get("search"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []plugin.CatalogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeServiceError maps the lifecycle error taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var hookErr *plugin.HookError
	switch {
	case errors.Is(err, plugin.ErrPluginNotFound),
		errors.Is(err, plugin.ErrPluginNotInstalled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, plugin.ErrPluginAlreadyInstalled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, plugin.ErrInvalidManifest),
		errors.Is(err, plugin.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &hookErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
