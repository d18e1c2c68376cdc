package hub

import (
	"encoding/json"
	"net/http"

	"github.com/c3i/globe/internal/geojson"
)

func (h *Hub) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.Secret != "" && r.URL.Query().Get("secret") != h.cfg.Secret {
			http.Error(w, "invalid secret", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Hub) serveHealthcheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"clients":   h.ClientCount(),
		"waypoints": h.cache.Len(),
	})
}

func (h *Hub) serveWaypoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.All())
}

func (h *Hub) serveGeoJSON(w http.ResponseWriter, r *http.Request) {
	crs, err := geojson.ParseCRS(r.URL.Query().Get("crs"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := geojson.Marshal(h.cache.All(), crs)
	if err != nil {
		h.logger.Error("GeoJSON export failed", "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
