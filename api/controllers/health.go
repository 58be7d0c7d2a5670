package controllers

import (
	"context"
	"net/http"

	"github.com/rifaescolar/raffle-backend/api/responses"
	"github.com/rifaescolar/raffle-backend/pkg/config"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

const envHeader = "X-Rifa-Env"

// Pinger is the readiness surface a backing store exposes.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the backing stores. Nil pingers are skipped, which is
// how simulation mode reports ready without a database or Redis.
func HealthReady(cfg *config.Config, logg *logger.Logger, probes map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set(envHeader, cfg.App.Env)

		for name, probe := range probes {
			if probe == nil {
				continue
			}
			if err := probe.Ping(ctx); err != nil {
				wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable")
				responses.WriteError(ctx, logg, w, wrapped)
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
