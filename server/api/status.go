package api

import (
	"net/http"
	"time"
)

// RootHandler returns basic service metadata at GET /.
func (h *Handlers) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "taskhive",
			"version": h.Version,
		})
	}
}

// HealthHandler reports liveness plus a reachability check against the
// task store. A failing store degrades the status without failing the
// endpoint.
func (h *Handlers) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		storeStatus := "ok"
		if h.Store != nil {
			if err := h.Store.Ping(r.Context()); err != nil {
				status = "degraded"
				storeStatus = "unreachable"
			}
		} else {
			status = "degraded"
			storeStatus = "not configured"
		}
		mqttStatus := "disabled"
		if p, ok := h.Publisher.(interface{ Connected() bool }); ok {
			if p.Connected() {
				mqttStatus = "connected"
			} else {
				mqttStatus = "disconnected"
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         status,
			"store":          storeStatus,
			"mqtt":           mqttStatus,
			"version":        h.Version,
			"uptime_seconds": time.Now().Unix() - h.StartAt,
		})
	}
}
