package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"autostory/internal/export"
	"autostory/internal/fetch"
	"autostory/internal/http/handlers"
	httpapi "autostory/internal/http/httpapi"
	"autostory/internal/imaging"
	"autostory/internal/infra"
	"autostory/internal/providers/genai"
	"autostory/internal/storage"
	"autostory/internal/worker"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	// Missing credentials degrade operations instead of blocking startup;
	// say so once, up front.
	for _, d := range cfg.Degradations() {
		logger.Warn().
			Str("credential", d.Credential).
			Str("disabled", strings.Join(d.Operations, ", ")).
			Msg("running degraded")
	}

	var limiter *rate.Limiter
	if cfg.GeminiRatePerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.GeminiRatePerMin)), 1)
	}

	gemini := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Limiter: limiter,
		Logger:  logger,
	})

	store := storage.NewSupabaseStore(storage.Options{
		BaseURL: cfg.SupabaseURL,
		APIKey:  cfg.SupabaseKey,
		Logger:  logger,
	})

	persister := worker.NewPersister(store, logger, cfg.PersistQueueSize)

	app := &handlers.App{
		Logger:    logger,
		Generator: gemini,
		Captioner: genai.NewCaptioner(gemini),
		Images:    imaging.NewProcessor(),
		Fetcher:   fetch.New(fetch.Options{Logger: logger}),
		Store:     store,
		Persister: persister,
		Exporter:  export.NewRenderer(export.NewWkhtmltopdfEngine(cfg.WkhtmltopdfPath)),
	}

	router := httpapi.NewRouter(app, logger, cfg.CORSAllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Stop accepting persistence work and drain what is already queued so
	// accepted stories survive the restart.
	if err := persister.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("persist queue did not drain")
	}
	logger.Info().Msg("server stopped")
}
