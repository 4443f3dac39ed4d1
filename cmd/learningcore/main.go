// Command learningcore runs the learning core as a standalone process:
// it drains the durable queue into the Coordinator and exposes
// Prometheus metrics and a liveness endpoint over HTTP.
package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	learningcore "github.com/lotustrader/learningcore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

func main() {
	cfg := learningcore.LoadConfig()
	log := learningcore.SetupLogging(cfg.LogLevel)
	log.Info().Str("port", cfg.Port).Msg("learningcore: starting")

	strandStore, queueImpl, err := wireStorage(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("learningcore: storage wiring failed")
	}
	defer closeIfCloser(strandStore, log)
	defer closeIfCloser(queueImpl, log)

	registry := prometheus.NewRegistry()
	coordMetrics, err := learningcore.NewMetrics("learningcore", registry)
	if err != nil {
		log.Fatal().Err(err).Msg("learningcore: metrics registration failed")
	}

	promptRegistry, err := learningcore.NewPromptRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("learningcore: prompt registry load failed")
	}

	capability := wireLLMCapability(cfg)

	cls := learningcore.NewClassifier()
	res := learningcore.NewResonanceEngine()
	clu := learningcore.NewClusteringEngine(learningcore.ComponentLogger("clustering"))
	br := learningcore.NewBraider(strandStore, promptRegistry, capability, cfg.BraidMaxRetries, learningcore.ComponentLogger("braider"))
	pr := learningcore.NewPromoter(strandStore)
	defaultCoefCfg := learningcore.DefaultCoefficientConfig()
	coef := learningcore.NewCoefficientUpdater(
		learningcore.CoefficientConfig{
			TauShort:       cfg.TauShort,
			TauLong:        cfg.TauLong,
			BleedBeta:      cfg.Bleed,
			BleedThreshold: cfg.BleedThreshold,
			Bounds:         defaultCoefCfg.Bounds,
		},
		learningcore.DefaultBucketVocabulary(),
	)

	coordCfg := learningcore.DefaultCoordinatorConfig()
	coordCfg.Concurrency = cfg.WorkerCount
	coordCfg.CrossModuleWeight = cfg.CrossModuleWeight
	coordCfg.CrossModuleMinSamples = cfg.CrossModuleMinSamples

	coord := learningcore.NewCoordinator(strandStore, cls, res, clu, br, pr, coef, coordMetrics, coordCfg, learningcore.ComponentLogger("coordinator"))

	subs, cache, injector := wireContext(cfg, strandStore, log)
	coord.Observers().Register(&cacheInvalidatingObserver{subs: subs, cache: cache})

	dispatcher := coord.NewDispatcher(queueImpl, cfg.QueueBatchSize, cfg.QueueVisibility, cfg.QueuePollInterval, 200*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	dispatchErrors := make(chan error, 1)
	go func() {
		dispatchErrors <- dispatcher.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/context", contextHandler(injector))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("learningcore: metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("learningcore: metrics server error")
	case err := <-dispatchErrors:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("learningcore: dispatcher stopped unexpectedly")
		}
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("learningcore: shutdown initiated")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("learningcore: metrics server shutdown failed")
	}

	log.Info().Msg("learningcore: stopped")
}

// wireStorage picks the durable Postgres-backed pair when
// LEARNINGCORE_DATABASE_DSN is set, otherwise an in-memory pair for
// local development.
func wireStorage(cfg *learningcore.Config, log zerolog.Logger) (learningcore.StrandStore, learningcore.Queue, error) {
	if cfg.DatabaseDSN == "" {
		q := learningcore.NewMemoryQueue(cfg.DispatchMaxRetries)
		return learningcore.NewMemoryStore(q), q, nil
	}

	q, err := learningcore.NewPostgresQueue(cfg.DatabaseDSN, cfg.DispatchMaxRetries, learningcore.ComponentLogger("queue"))
	if err != nil {
		return nil, nil, err
	}
	s, err := learningcore.NewPostgresStore(cfg.DatabaseDSN, learningcore.ComponentLogger("store"))
	if err != nil {
		return nil, nil, err
	}
	return s, q, nil
}

func wireLLMCapability(cfg *learningcore.Config) learningcore.LLMCapability {
	if cfg.OpenAIKey == "" {
		return learningcore.NewMockCapability()
	}
	client := openai.NewClient(cfg.OpenAIKey)
	return learningcore.NewOpenAICapability(client, cfg.OpenAIModel)
}

// wireContext builds the read-side Context Injector: a static
// subscription registry (populated here with this process's own
// consumer; an embedder with more consumers registers more), a Redis-
// backed cache (if Redis is unreachable, reads count as misses and
// writes are dropped with a warning), and the Injector itself.
func wireContext(cfg *learningcore.Config, s learningcore.StrandStore, log zerolog.Logger) (*learningcore.SubscriptionRegistry, *learningcore.ContextCache, *learningcore.Injector) {
	subs := learningcore.NewSubscriptionRegistry()
	subs.Register(learningcore.Subscription{
		ConsumerID:    "default",
		Kinds:         []learningcore.StrandKind{learningcore.KindBraid},
		MinBraidLevel: 2,
		MaxAge:        30 * 24 * time.Hour,
		MaxItems:      10,
	})

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	cache := learningcore.NewContextCache(rdb, cfg.ContextCacheTTL, learningcore.ComponentLogger("context_cache"))
	injector := learningcore.NewInjector(s, subs, cache, learningcore.ComponentLogger("context_injector"))
	return subs, cache, injector
}

// contextHandler exposes get_context over HTTP: GET /context?consumer_id=...
func contextHandler(injector *learningcore.Injector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		consumerID := r.URL.Query().Get("consumer_id")
		if consumerID == "" {
			http.Error(w, "consumer_id is required", http.StatusBadRequest)
			return
		}
		var hint *learningcore.ContextHint
		if symbol := r.URL.Query().Get("symbol"); symbol != "" {
			hint = &learningcore.ContextHint{
				Symbol:    symbol,
				Timeframe: r.URL.Query().Get("timeframe"),
				Regime:    r.URL.Query().Get("regime"),
			}
		}
		payload := injector.GetContext(r.Context(), consumerID, hint)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// cacheInvalidatingObserver invalidates every subscribed consumer's
// context cache entry when a new braid qualifies it (spec §4.9 step 5:
// "invalidated when a newer braid is promoted into the subscribed
// set").
type cacheInvalidatingObserver struct {
	subs  *learningcore.SubscriptionRegistry
	cache *learningcore.ContextCache
}

func (o *cacheInvalidatingObserver) OnProcessed(learningcore.Item) {}

func (o *cacheInvalidatingObserver) OnBraidCreated(braid *learningcore.Strand) {
	for _, consumerID := range o.subs.ConsumersForKind(braid.Kind) {
		o.cache.InvalidateConsumer(consumerID)
	}
}

func (o *cacheInvalidatingObserver) OnFailure(learningcore.Item, error) {}

func (o *cacheInvalidatingObserver) OnShed(string) {}

// closeIfCloser releases resources for the durable (Postgres) wiring
// path; the in-memory store/queue don't implement io.Closer and are
// silently skipped.
func closeIfCloser(v interface{}, log zerolog.Logger) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		log.Warn().Err(err).Msg("learningcore: close failed during shutdown")
	}
}
