// Package settings provides HTTP handlers for the scan configuration and
// host network settings endpoints.
package settings

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/internal/server"
	"github.com/HerbHall/ipscan/internal/services"
	"github.com/HerbHall/ipscan/pkg/models"
)

// ConfigApplier owns the active scan configuration. recon.Module implements it.
type ConfigApplier interface {
	Config() models.ScanConfig
	ApplyConfig(ctx context.Context, cfg models.ScanConfig) (models.ScanConfig, error)
}

// InterfaceLister enumerates candidate scan interfaces.
type InterfaceLister interface {
	ListNetworkInterfaces() ([]services.NetworkInterface, error)
}

// Handler provides HTTP handlers for settings endpoints.
type Handler struct {
	interfaces InterfaceLister
	config     ConfigApplier
	logger     *zap.Logger
}

// NewHandler creates a settings Handler. A nil lister uses the host's
// interfaces.
func NewHandler(config ConfigApplier, interfaces InterfaceLister, logger *zap.Logger) *Handler {
	if interfaces == nil {
		interfaces = services.NewInterfaceService()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		interfaces: interfaces,
		config:     config,
		logger:     logger,
	}
}

var _ server.RouteRegistrar = (*Handler)(nil)

// RegisterRoutes registers settings-related routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/config", h.handleGetConfig)
	mux.HandleFunc("POST /api/v1/config", h.handleSetConfig)
	mux.HandleFunc("GET /api/v1/settings/interfaces", h.handleListInterfaces)
}

// handleGetConfig returns the active scan configuration.
//
//	@Summary		Get scan configuration
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	models.ScanConfig
//	@Router			/config [get]
func (h *Handler) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, h.config.Config())
}

// handleSetConfig validates, persists and applies a scan configuration.
// Fields absent from the body keep their current values.
//
//	@Summary		Update scan configuration
//	@Description	Validates and stores the configuration and re-arms auto-scan. A running scan is not affected.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.ScanConfig	true	"New configuration"
//	@Success		200		{object}	models.ScanConfig
//	@Failure		400		{object}	server.Problem	"Invalid configuration"
//	@Failure		500		{object}	server.Problem	"Internal server error"
//	@Router			/config [post]
func (h *Handler) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Config()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return
	}

	applied, err := h.config.ApplyConfig(r.Context(), cfg)
	if err != nil {
		if !scanner.IsValidation(err) {
			h.logger.Error("failed to apply scan config", zap.Error(err))
		}
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, applied)
}

// handleListInterfaces returns all available network interfaces.
//
//	@Summary		List network interfaces
//	@Description	Non-loopback IPv4 interfaces with their subnet, for suggesting a scan range.
//	@Tags			settings
//	@Produce		json
//	@Success		200	{array}		services.NetworkInterface	"List of interfaces"
//	@Failure		500	{object}	server.Problem				"Internal server error"
//	@Router			/settings/interfaces [get]
func (h *Handler) handleListInterfaces(w http.ResponseWriter, r *http.Request) {
	interfaces, err := h.interfaces.ListNetworkInterfaces()
	if err != nil {
		h.logger.Error("failed to list interfaces", zap.Error(err))
		server.InternalError(w, "failed to list network interfaces", r.URL.Path)
		return
	}

	server.WriteJSON(w, http.StatusOK, interfaces)
}
