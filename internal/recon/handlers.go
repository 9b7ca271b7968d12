package recon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/internal/server"
)

// DeviceNameRequest assigns or clears a manual device name.
// @Description Request body for naming a device. An empty name clears it.
type DeviceNameRequest struct {
	IP   string `json:"ip" example:"192.168.1.10"`
	Name string `json:"name" example:"NAS"`
}

// ImportResponse reports how many names an import stored.
// @Description Result of a device name import.
type ImportResponse struct {
	Imported int `json:"imported" example:"12"`
}

// maxImportBytes caps the body of a name import.
const maxImportBytes = 1 << 20

// DeviceNameResponse echoes the normalized assignment.
// @Description The stored IP and trimmed name.
type DeviceNameResponse struct {
	IP   string `json:"ip" example:"192.168.1.10"`
	Name string `json:"name" example:"NAS"`
}

var _ server.RouteRegistrar = (*Module)(nil)

// RegisterRoutes mounts the scan endpoints on mux.
func (m *Module) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/scan", m.handleScan)
	mux.HandleFunc("GET /api/v1/results", m.handleResults)
	mux.HandleFunc("GET /api/v1/results/ws", m.handleResultsStream)
	mux.HandleFunc("GET /api/v1/results/csv", m.handleResultsCSV)
	mux.HandleFunc("POST /api/v1/device-name", m.handleDeviceName)
	mux.HandleFunc("POST /api/v1/device-names/import", m.handleImportNames)
}

// handleScan runs a scan with the active configuration.
//
//	@Summary		Run a scan
//	@Description	Scans the configured range and returns the finalized snapshot.
//	@Description	With async=true the request returns immediately with the scanning snapshot.
//	@Tags			scan
//	@Produce		json
//	@Param			async	query		bool			false	"Return before the scan finishes"
//	@Success		200		{object}	models.Snapshot
//	@Success		202		{object}	models.Snapshot
//	@Failure		400		{object}	server.Problem	"Invalid configuration"
//	@Failure		409		{object}	server.Problem	"Scan already in progress"
//	@Failure		503		{object}	server.Problem	"Server shutting down"
//	@Router			/scan [post]
func (m *Module) handleScan(w http.ResponseWriter, r *http.Request) {
	done, err := m.StartScan()
	if err != nil {
		server.WriteError(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		server.WriteJSON(w, http.StatusAccepted, m.coordinator.Current())
		return
	}

	select {
	case out := <-done:
		switch {
		case errors.Is(out.Err, context.Canceled):
			server.Unavailable(w, "scan cancelled by server shutdown", r.URL.Path)
			return
		case out.Err != nil:
			m.logger.Warn("scan failed", zap.Error(out.Err))
			server.WriteError(w, r, out.Err)
			return
		}
		server.WriteJSON(w, http.StatusOK, out.Snapshot)
	case <-r.Context().Done():
		// The scan keeps running; its result is served from /results.
		m.logger.Debug("scan request abandoned by client")
	}
}

// handleResults returns the current snapshot.
//
//	@Summary		Current results
//	@Description	Returns the in-progress snapshot while scanning, otherwise the last finalized one.
//	@Tags			scan
//	@Produce		json
//	@Success		200	{object}	models.Snapshot
//	@Router			/results [get]
func (m *Module) handleResults(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, m.coordinator.Current())
}

// handleDeviceName sets or clears the manual name of an address.
//
//	@Summary		Name a device
//	@Tags			scan
//	@Accept			json
//	@Produce		json
//	@Param			request	body		DeviceNameRequest	true	"Assignment"
//	@Success		200		{object}	DeviceNameResponse
//	@Failure		400		{object}	server.Problem
//	@Router			/device-name [post]
func (m *Module) handleDeviceName(w http.ResponseWriter, r *http.Request) {
	var req DeviceNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}

	ip, name, err := m.SetDeviceName(r.Context(), req.IP, req.Name)
	if err != nil {
		if !scanner.IsValidation(err) {
			m.logger.Error("failed to set device name", zap.String("ip", req.IP), zap.Error(err))
		}
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, DeviceNameResponse{IP: ip, Name: name})
}

// handleResultsCSV exports the current snapshot as CSV.
//
//	@Summary		Export results
//	@Tags			scan
//	@Produce		text/csv
//	@Success		200	{string}	string	"CSV with one row per address"
//	@Router			/results/csv [get]
func (m *Module) handleResultsCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ipscan-results.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := WriteResultsCSV(w, m.coordinator.Current()); err != nil {
		m.logger.Debug("results export interrupted", zap.Error(err))
	}
}

// handleImportNames sets manual names in bulk from "ip,name" CSV rows. The
// whole body is validated before any name is applied.
//
//	@Summary		Import device names
//	@Tags			scan
//	@Accept			text/csv
//	@Produce		json
//	@Success		200	{object}	ImportResponse
//	@Failure		400	{object}	server.Problem	"Malformed row"
//	@Router			/device-names/import [post]
func (m *Module) handleImportNames(w http.ResponseWriter, r *http.Request) {
	entries, err := ParseNamesCSV(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		server.WriteError(w, r, err)
		return
	}

	n, err := m.ImportDeviceNames(r.Context(), entries)
	if err != nil {
		m.logger.Error("device name import failed", zap.Int("rows", len(entries)), zap.Error(err))
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, ImportResponse{Imported: n})
}
