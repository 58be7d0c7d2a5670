package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rifaescolar/raffle-backend/api/controllers"
	webhookcontrollers "github.com/rifaescolar/raffle-backend/api/controllers/webhooks"
	"github.com/rifaescolar/raffle-backend/api/middleware"
	mpwebhook "github.com/rifaescolar/raffle-backend/internal/webhooks/mercadopago"
	"github.com/rifaescolar/raffle-backend/pkg/config"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
	"github.com/rifaescolar/raffle-backend/pkg/mercadopago"
)

// Params carry everything the HTTP surface depends on. Nil services are
// tolerated; their endpoints answer with a service-unavailable error, which
// keeps simulation mode and partial deployments bootable.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	Probes map[string]controllers.Pinger

	Raffles      controllers.RaffleService
	Availability controllers.AvailabilityService
	Reservations controllers.ReservationService
	Purchases    controllers.PurchaseService
	Settlement   controllers.SettlementService
	PrefRecorder controllers.PreferenceRecorder
	Sweep        controllers.SweepTrigger

	WebhookService *mpwebhook.Service
	PaymentsClient *mercadopago.Client
	WebhookGuard   *mpwebhook.IdempotencyGuard
}

func NewRouter(params Params) http.Handler {
	cfg := params.Config
	logg := params.Logger
	holdTimeout := cfg.Raffle.HoldTimeout
	if holdTimeout <= 0 {
		holdTimeout = 15 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Probes))
	})

	// Typed nils must not sneak into the controller's interface checks.
	var webhookSvc webhookcontrollers.WebhookService
	if params.WebhookService != nil {
		webhookSvc = params.WebhookService
	}
	var signer webhookcontrollers.SigningClient
	if params.PaymentsClient != nil {
		signer = params.PaymentsClient
	}
	var guard webhookcontrollers.WebhookGuard
	if params.WebhookGuard != nil {
		guard = params.WebhookGuard
	}
	var preferences controllers.PreferenceClient
	if params.PaymentsClient != nil {
		preferences = params.PaymentsClient
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mercadopago", webhookcontrollers.MercadoPagoWebhook(webhookSvc, signer, guard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/raffle", controllers.GetRaffle(params.Raffles, logg))
		r.Get("/raffle/stats", controllers.GetRaffleStats(params.Raffles, logg))
		r.Get("/numbers", controllers.ListNumbers(params.Raffles, logg))
		r.Post("/numbers/verify", controllers.VerifyNumbers(params.Raffles, params.Availability, logg))

		r.Post("/reservations", controllers.CreateReservation(params.Raffles, params.Reservations, holdTimeout, logg))

		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", controllers.CreatePurchase(params.Raffles, params.Reservations, params.Purchases, holdTimeout, logg))
			r.Get("/{purchaseID}", controllers.GetPurchase(params.Purchases, logg))
			r.Post("/{purchaseID}/confirm", controllers.ConfirmPurchase(params.Settlement, logg))
			r.Post("/{purchaseID}/cancel", controllers.CancelPurchase(params.Settlement, logg))
			r.Post("/{purchaseID}/preference", controllers.CreatePreference(params.Purchases, preferences, params.PrefRecorder, holdTimeout, logg))
		})

		// Buyer returns from the hosted checkout land here; the preference's
		// back_urls point at these paths.
		r.Route("/payment", func(r chi.Router) {
			redirectBase := cfg.MercadoPago.RedirectBase
			r.Get("/success", controllers.PaymentReturn("success", redirectBase, logg))
			r.Get("/failure", controllers.PaymentReturn("failure", redirectBase, logg))
			r.Get("/pending", controllers.PaymentReturn("pending", redirectBase, logg))
		})

		r.Route("/cron", func(r chi.Router) {
			r.Use(middleware.CronAuth(cfg.Cron.Secret, logg))
			r.Post("/cleanup", controllers.TriggerCleanup(params.Sweep, logg))
		})
	})

	return r
}
