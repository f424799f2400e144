package httpx

import (
	"log/slog"
	"net/http"

	"github.com/devLink-Developer/chatbot-camping/internal/core"
)

// RouterServices holds the dependencies the HTTP router needs.
type RouterServices struct {
	Messages core.MessageRepository   // Required: webhook ingestion and queue surface
	Configs  core.JobConfigRepository // Required: job admin surface
	Engine   JobExecutor              // Required: manual firings
	// WebhookVerifyToken is echoed back on the provider's GET handshake.
	WebhookVerifyToken string
	Logger             *slog.Logger // Optional: request logging and handler errors
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	webhook := &WebhookHandlers{
		Messages:    services.Messages,
		VerifyToken: services.WebhookVerifyToken,
		Logger:      services.Logger,
	}
	mux.HandleFunc("GET /webhook", webhook.Verify)
	mux.HandleFunc("POST /webhook", webhook.Receive)

	jobs := &JobHandlers{
		Configs: services.Configs,
		Engine:  services.Engine,
		Logger:  services.Logger,
	}
	mux.HandleFunc("GET /api/jobs", jobs.List)
	mux.HandleFunc("GET /api/jobs/{id}", jobs.Get)
	mux.HandleFunc("POST /api/jobs/{id}/pause", jobs.Pause)
	mux.HandleFunc("POST /api/jobs/{id}/resume", jobs.Resume)
	mux.HandleFunc("POST /api/jobs/{id}/trigger", jobs.TriggerNow)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", jobs.Cancel)
	mux.HandleFunc("POST /api/jobs/refresh", jobs.Refresh)
	mux.HandleFunc("GET /api/jobs/{id}/run-logs", jobs.RunLogs)

	queue := &QueueHandlers{Messages: services.Messages}
	mux.HandleFunc("GET /api/queue/stats", queue.Stats)
	mux.HandleFunc("GET /api/queue/messages/{id}", queue.GetMessage)
	mux.HandleFunc("POST /api/queue/messages/{id}/requeue", queue.Requeue)

	var handler http.Handler = mux
	if services.Logger != nil {
		handler = Logging(services.Logger)(handler)
		handler = Recover(services.Logger)(handler)
	}
	return handler
}
