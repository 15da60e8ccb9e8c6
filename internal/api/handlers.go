// Package api exposes the provisioning operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pixelpi-co-uk/pixelpi/internal/adapter"
	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/wifiap"
	"github.com/pixelpi-co-uk/pixelpi/internal/wled"
)

// WifiManager drives the access point.
type WifiManager interface {
	Configure(ctx context.Context, ssid, psk string, channel int, gateway string) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Restart(ctx context.Context) error
	Status(ctx context.Context) wifiap.Status
	Config(ctx context.Context) *wifiap.APConfig
	ConnectedClients(ctx context.Context) ([]wifiap.Client, error)
}

// AdapterService lists host interfaces.
type AdapterService interface {
	List() ([]adapter.Adapter, error)
	USBEthernet() ([]adapter.Adapter, error)
}

// AdapterProvisioner assigns addresses and DHCP scopes.
type AdapterProvisioner interface {
	Assign(ctx context.Context, iface, address string, prefix int) (adapter.AssignResult, error)
}

// DeviceScanner sweeps a subnet for WLED controllers.
type DeviceScanner interface {
	Sweep(ctx context.Context, subnet string) (*wled.Scan, []wled.Device, error)
}

// ReservationStore manages DHCP reservations in the shared config.
type ReservationStore interface {
	UpsertReservation(ctx context.Context, mac, ip, hostname string) (dnsmasq.ApplyResult, error)
	RemoveReservation(ctx context.Context, mac string) (dnsmasq.ApplyResult, error)
	ListReservations() ([]dnsmasq.Reservation, error)
}

// Inventory reads persisted discovery results.
type Inventory interface {
	ListDevices() ([]wled.Device, error)
	ListScans(limit int) ([]wled.Scan, error)
}

// Handler handles HTTP requests.
type Handler struct {
	wifi         WifiManager
	adapters     AdapterService
	provisioner  AdapterProvisioner
	scanner      DeviceScanner
	reservations ReservationStore
	inventory    Inventory
}

// NewHandler creates a new API handler.
func NewHandler(wifi WifiManager, adapters AdapterService, provisioner AdapterProvisioner,
	scanner DeviceScanner, reservations ReservationStore, inventory Inventory) *Handler {
	return &Handler{
		wifi:         wifi,
		adapters:     adapters,
		provisioner:  provisioner,
		scanner:      scanner,
		reservations: reservations,
		inventory:    inventory,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Adapters
	mux.HandleFunc("GET /api/adapters", h.listAdapters)
	mux.HandleFunc("GET /api/adapters/usb", h.listUSBAdapters)
	mux.HandleFunc("POST /api/adapters/{interface}/configure", h.configureAdapter)

	// WLED discovery and reservations
	mux.HandleFunc("POST /api/wled/scan", h.scanWLED)
	mux.HandleFunc("GET /api/wled/devices", h.listWLEDDevices)
	mux.HandleFunc("GET /api/wled/scans", h.listWLEDScans)
	mux.HandleFunc("POST /api/wled/reserve", h.reserveWLED)
	mux.HandleFunc("GET /api/wled/reservations", h.listReservations)
	mux.HandleFunc("DELETE /api/wled/reservations/{mac}", h.removeReservation)

	// WiFi AP
	mux.HandleFunc("GET /api/wifi/status", h.wifiStatus)
	mux.HandleFunc("GET /api/wifi/clients", h.wifiClients)
	mux.HandleFunc("POST /api/wifi/configure", h.wifiConfigure)
	mux.HandleFunc("POST /api/wifi/enable", h.wifiEnable)
	mux.HandleFunc("POST /api/wifi/disable", h.wifiDisable)
	mux.HandleFunc("POST /api/wifi/restart", h.wifiRestart)

	// System
	mux.HandleFunc("GET /api/system/status", h.systemStatus)
}

// listAdapters handles GET /api/adapters
func (h *Handler) listAdapters(w http.ResponseWriter, r *http.Request) {
	adapters, err := h.adapters.List()
	if err != nil {
		log.Error("Failed to list adapters", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true, "adapters": adapters})
}

// listUSBAdapters handles GET /api/adapters/usb
func (h *Handler) listUSBAdapters(w http.ResponseWriter, r *http.Request) {
	adapters, err := h.adapters.USBEthernet()
	if err != nil {
		log.Error("Failed to list USB adapters", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true, "adapters": adapters})
}

// configureAdapter handles POST /api/adapters/{interface}/configure
func (h *Handler) configureAdapter(w http.ResponseWriter, r *http.Request) {
	iface := r.PathValue("interface")

	var req struct {
		IP     string `json:"ip"`
		Prefix int    `json:"prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IP == "" {
		h.writeError(w, http.StatusBadRequest, "ip is required")
		return
	}

	log.Debug("Configuring adapter", "interface", iface, "ip", req.IP)
	result, err := h.provisioner.Assign(r.Context(), iface, req.IP, req.Prefix)
	if err != nil {
		log.Error("Adapter configuration failed", "interface", iface, "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{"success": true, "result": result})
}

// scanWLED handles POST /api/wled/scan
func (h *Handler) scanWLED(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subnet string `json:"subnet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subnet == "" {
		h.writeError(w, http.StatusBadRequest, "subnet is required")
		return
	}

	scan, devices, err := h.scanner.Sweep(r.Context(), req.Subnet)
	if err != nil {
		log.Error("WLED scan failed", "subnet", req.Subnet, "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{"success": true, "scan": scan, "devices": devices})
}

// listWLEDDevices handles GET /api/wled/devices
func (h *Handler) listWLEDDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.inventory.ListDevices()
	if err != nil {
		log.Error("Failed to list WLED devices", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true, "devices": devices})
}

// listWLEDScans handles GET /api/wled/scans
func (h *Handler) listWLEDScans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	scans, err := h.inventory.ListScans(limit)
	if err != nil {
		log.Error("Failed to list scans", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true, "scans": scans})
}

// reserveWLED handles POST /api/wled/reserve
func (h *Handler) reserveWLED(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MAC      string `json:"mac"`
		IP       string `json:"ip"`
		Hostname string `json:"hostname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MAC == "" || req.IP == "" {
		h.writeError(w, http.StatusBadRequest, "mac and ip are required")
		return
	}

	result, err := h.reservations.UpsertReservation(r.Context(), req.MAC, req.IP, req.Hostname)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info("Reservation saved", "mac", req.MAC, "ip", req.IP)
	h.writeJSON(w, http.StatusOK, envelope{
		"success":      true,
		"dhcp_applied": !result.ReloadFailed,
	})
}

// listReservations handles GET /api/wled/reservations
func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.reservations.ListReservations()
	if err != nil {
		log.Error("Failed to list reservations", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true, "reservations": reservations})
}

// removeReservation handles DELETE /api/wled/reservations/{mac}
func (h *Handler) removeReservation(w http.ResponseWriter, r *http.Request) {
	mac := r.PathValue("mac")
	if mac == "" {
		h.writeError(w, http.StatusBadRequest, "mac is required")
		return
	}

	result, err := h.reservations.RemoveReservation(r.Context(), mac)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !result.Changed {
		h.writeError(w, http.StatusNotFound, "reservation not found")
		return
	}

	log.Info("Reservation removed", "mac", mac)
	h.writeJSON(w, http.StatusOK, envelope{"success": true})
}

// wifiStatus handles GET /api/wifi/status
func (h *Handler) wifiStatus(w http.ResponseWriter, r *http.Request) {
	status := h.wifi.Status(r.Context())
	resp := envelope{"success": true, "status": status}
	if cfg := h.wifi.Config(r.Context()); cfg != nil {
		resp["config"] = cfg
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// wifiClients handles GET /api/wifi/clients
func (h *Handler) wifiClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.wifi.ConnectedClients(r.Context())
	if err != nil {
		log.Error("Failed to list AP clients", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true, "clients": clients, "count": len(clients)})
}

// wifiConfigure handles POST /api/wifi/configure
func (h *Handler) wifiConfigure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SSID    string `json:"ssid"`
		PSK     string `json:"psk"`
		Channel int    `json:"channel"`
		Gateway string `json:"ip_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Channel == 0 {
		req.Channel = wifiap.DefaultChannel
	}
	if req.Gateway == "" {
		req.Gateway = wifiap.DefaultGateway
	}

	if err := h.wifi.Configure(r.Context(), req.SSID, req.PSK, req.Channel, req.Gateway); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true})
}

// wifiEnable handles POST /api/wifi/enable
func (h *Handler) wifiEnable(w http.ResponseWriter, r *http.Request) {
	if err := h.wifi.Enable(r.Context()); err != nil {
		if errors.Is(err, wifiap.ErrNotConfigured) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error("WiFi enable failed", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true})
}

// wifiDisable handles POST /api/wifi/disable
func (h *Handler) wifiDisable(w http.ResponseWriter, r *http.Request) {
	if err := h.wifi.Disable(r.Context()); err != nil {
		log.Error("WiFi disable failed", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true})
}

// wifiRestart handles POST /api/wifi/restart
func (h *Handler) wifiRestart(w http.ResponseWriter, r *http.Request) {
	if err := h.wifi.Restart(r.Context()); err != nil {
		log.Error("WiFi restart failed", "error", err)
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{"success": true})
}

// systemStatus handles GET /api/system/status
func (h *Handler) systemStatus(w http.ResponseWriter, r *http.Request) {
	resp := envelope{"success": true, "wifi": h.wifi.Status(r.Context())}

	if usb, err := h.adapters.USBEthernet(); err == nil {
		resp["usb_adapters"] = len(usb)
	}
	if devices, err := h.inventory.ListDevices(); err == nil {
		resp["known_devices"] = len(devices)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type envelope map[string]any

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response in the same envelope shape.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{"success": false, "error": message})
}

// internalError logs the error and writes a generic 500 response.
func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error("Internal server error", "error", err)
	h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
