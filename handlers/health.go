package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthCheckHandler reports process liveness for load balancers.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"status":    "ok",
		"service":   "sori-gateway",
		"timestamp": time.Now(),
	}

	json.NewEncoder(w).Encode(response)
}
