package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Harshitk-cp/factgate/internal/api/handlers"
	mw "github.com/Harshitk-cp/factgate/internal/api/middleware"
	"github.com/Harshitk-cp/factgate/internal/breaker"
	"github.com/Harshitk-cp/factgate/internal/buildconfig"
	"github.com/Harshitk-cp/factgate/internal/config"
	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/llm"
	"github.com/Harshitk-cp/factgate/internal/metrics"
	"github.com/Harshitk-cp/factgate/internal/service"
	"github.com/Harshitk-cp/factgate/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Audit     *service.AuditLogger
	Registry  *breaker.Registry
	Sequencer *llm.Sequencer
	Metrics   *metrics.Metrics
	startTime time.Time
}

type appOptions struct {
	providers  []llm.Provider
	auditStore domain.AuditStore
	promReg    *prometheus.Registry
	apiKey     string
	apiKeySet  bool
}

type AppOption func(*appOptions)

// WithProviders replaces the providers built from the environment.
func WithProviders(p []llm.Provider) AppOption {
	return func(o *appOptions) {
		o.providers = p
	}
}

// WithAuditStore replaces the pgx audit store, e.g. with an in-memory fake.
func WithAuditStore(s domain.AuditStore) AppOption {
	return func(o *appOptions) {
		o.auditStore = s
	}
}

// WithPrometheusRegistry registers collectors on reg instead of a fresh registry.
func WithPrometheusRegistry(reg *prometheus.Registry) AppOption {
	return func(o *appOptions) {
		o.promReg = reg
	}
}

// WithAPIKey overrides API_KEY. An empty key disables auth.
func WithAPIKey(key string) AppOption {
	return func(o *appOptions) {
		o.apiKey = key
		o.apiKeySet = true
	}
}

// NewApp wires the pipeline. db may be nil, in which case audit events are
// only logged.
func NewApp(db *pgxpool.Pool, logger *zap.Logger, opts ...AppOption) *App {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.promReg == nil {
		o.promReg = prometheus.NewRegistry()
		o.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if !o.apiKeySet {
		o.apiKey = config.APIKey()
	}
	m := metrics.New(o.promReg)

	// Stores
	auditStore := o.auditStore
	if auditStore == nil && db != nil {
		auditStore = store.NewAuditStore(db)
	}

	// Circuit breakers and failover
	providers := o.providers
	if providers == nil {
		providers = providersFromConfig(logger)
	}
	registry := breaker.NewRegistry(config.BreakerConfig())
	sequencer := llm.NewSequencer(registry, providers, logger, llm.WithMetrics(m))

	// Services
	audit := service.NewAuditLogger(auditStore, config.AuditBufferSize(), m, logger)
	doubter := service.NewDoubterService(config.DoubterEnabled(), audit, m, logger)
	safety := service.NewSafetyProtocol(doubter, logger)
	safety.SetTolerance(config.TrustValueTolerance())
	debates := service.NewDebateService(sequencer, safety, audit, m, logger)
	debates.SetMaxConcurrency(config.DebateMaxConcurrency())
	debates.SetGenerateOptions(domain.GenerateOptions{Timeout: config.ProviderTimeout()})

	// Handlers
	reviewHandler := handlers.NewReviewHandler(doubter)
	generateHandler := handlers.NewGenerateHandler(sequencer, config.ProviderTimeout())
	debateHandler := handlers.NewDebateHandler(debates)
	providersHandler := handlers.NewProvidersHandler(registry, sequencer.Providers(), logger)
	auditHandler := handlers.NewAuditHandler(auditStore, logger)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Audit:     audit,
		Registry:  registry,
		Sequencer: sequencer,
		Metrics:   m,
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.NewMetricsCollector(m).Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", app.healthHandler(db))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(o.promReg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(o.apiKey))

		r.Post("/facts/review", reviewHandler.Review)
		r.Post("/generate", generateHandler.Generate)

		r.Route("/debates", func(r chi.Router) {
			r.Post("/", debateHandler.Run)
			r.Post("/synthesize", debateHandler.Synthesize)
		})

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providersHandler.List)
			r.Post("/{name}/reset", providersHandler.Reset)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/subjects/{subject}", auditHandler.ListBySubject)
			r.Get("/events/{id}", auditHandler.Get)
		})
	})

	return app
}

// providersFromConfig builds the failover list from LLM_PROVIDERS. Providers
// whose client cannot be created are left out.
func providersFromConfig(logger *zap.Logger) []llm.Provider {
	strict := make(map[string]bool)
	for _, name := range config.StrictProviders() {
		strict[name] = true
	}

	var providers []llm.Provider
	for _, name := range config.LLMProviders() {
		client, err := llm.NewClient(name, config.ProviderAPIKey(name))
		if err != nil {
			logger.Warn("LLM client initialization failed", zap.String("provider", name), zap.Error(err))
			continue
		}

		cfg := config.BreakerConfig()
		if strict[name] {
			cfg = config.StrictBreakerConfig()
		}
		providers = append(providers, llm.Provider{Name: name, Client: client, Config: cfg})
		logger.Info("LLM provider registered",
			zap.String("provider", name),
			zap.Int("priority", len(providers)),
			zap.Int("failure_threshold", cfg.FailureThreshold))
	}
	if len(providers) == 0 {
		logger.Warn("no LLM providers available; generation and debates will fail")
	}
	return providers
}

type healthResponse struct {
	Status        string           `json:"status"`
	Error         string           `json:"error,omitempty"`
	Database      string           `json:"database"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Build         buildconfig.Info `json:"build"`
}

func (app *App) healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:        "ok",
			Database:      "disabled",
			UptimeSeconds: time.Since(app.startTime).Seconds(),
			Build:         buildconfig.Current(),
		}
		status := http.StatusOK

		if db != nil {
			resp.Database = "ok"
			if err := db.Ping(r.Context()); err != nil {
				resp.Status = "error"
				resp.Database = "unreachable"
				resp.Error = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.AuditStore = (*store.AuditStore)(nil)
	_ domain.LLMClient  = (*llm.OpenAIClient)(nil)
	_ domain.LLMClient  = (*llm.AnthropicClient)(nil)
	_ domain.LLMClient  = (*llm.GeminiClient)(nil)
	_ domain.LLMClient  = (*llm.CerebrasClient)(nil)
	_ domain.LLMClient  = (*llm.MockClient)(nil)
	_ service.Generator = (*llm.Sequencer)(nil)
)
