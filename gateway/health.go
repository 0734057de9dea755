package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlas/shield/replicadir"
)

type healthBody struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Replicas  int               `json:"replicas,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// HealthHandler reports process and store health, and the live replica
// count when a replicadir.Directory is configured.
func (g *Gateway) HealthHandler(storeClient redis.Cmdable, dir replicadir.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeStatus := "healthy"
		if storeClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			if err := storeClient.Ping(ctx).Err(); err != nil {
				storeStatus = "degraded"
			}
		} else {
			storeStatus = "degraded"
		}

		body := healthBody{
			Status: "ok",
			Services: map[string]string{
				"api":   "healthy",
				"redis": storeStatus,
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		if dir != nil {
			if peers, err := dir.Peers(r.Context()); err == nil {
				body.Replicas = len(peers)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}
