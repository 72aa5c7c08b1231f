package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/aquarent/aquarent-backend/api/responses"
	"github.com/aquarent/aquarent-backend/pkg/config"
	"github.com/aquarent/aquarent-backend/pkg/db"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-AquaRent-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and redis; a failing dependency flips the
// endpoint to 503 so the load balancer drains the instance.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-AquaRent-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		checks["database"] = pingStatus(ctx, dbP.Ping, &healthy)
		if redisP != nil {
			checks["redis"] = pingStatus(ctx, redisP.Ping, &healthy)
		}

		if !healthy {
			if logg != nil {
				logg.Warn(logg.WithFields(r.Context(), map[string]any{"checks": checks}), "readiness check failed")
			}
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, checks)
			return
		}
		responses.WriteSuccess(w, checks)
	}
}

func pingStatus(ctx context.Context, ping func(context.Context) error, healthy *bool) string {
	if err := ping(ctx); err != nil {
		*healthy = false
		return "unavailable"
	}
	return "ok"
}
