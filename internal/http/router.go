package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mercadotc/api/internal/auth"
	"github.com/mercadotc/api/internal/compensacao"
	"github.com/mercadotc/api/internal/config"
	"github.com/mercadotc/api/internal/empresa"
	httpmiddleware "github.com/mercadotc/api/internal/http/middleware"
	"github.com/mercadotc/api/internal/ledger"
	"github.com/mercadotc/api/internal/mercado"
	"github.com/mercadotc/api/internal/obrigacao"
	"github.com/mercadotc/api/internal/storage"
	"github.com/mercadotc/api/internal/titulo"
	"github.com/mercadotc/api/internal/worker"
)

// Services agrupa os serviços construídos para o roteador e para o worker.
type Services struct {
	Titulos      *titulo.Service
	Obrigacoes   *obrigacao.Service
	Compensacoes *compensacao.Service
	Empresas     *empresa.Service
	Mercado      *mercado.Service
	Worker       *worker.Service
}

// NewRouter monta os serviços e devolve o roteador configurado.
func NewRouter(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (http.Handler, *Services, error) {
	registrador, err := novoRegistrador(cfg)
	if err != nil {
		return nil, nil, err
	}

	uploader, err := novoUploader(cfg)
	if err != nil {
		return nil, nil, err
	}

	tituloRepo := titulo.NewRepository(pool)
	tituloService := titulo.NewService(tituloRepo, redisClient, registrador)

	obrigacaoRepo := obrigacao.NewRepository(pool)
	obrigacaoService := obrigacao.NewService(obrigacaoRepo)

	compRepo := compensacao.NewRepository(pool)
	compService := compensacao.NewService(compRepo, tituloRepo, obrigacaoRepo, registrador, redisClient, cfg.Compensacao)

	empresaRepo := empresa.NewRepository(pool)
	empresaService := empresa.NewService(empresaRepo)

	mercadoRepo := mercado.NewRepository(pool)
	mercadoService := mercado.NewService(mercadoRepo, tituloRepo, registrador)

	workerService := worker.NewService(compService, tituloRepo, obrigacaoRepo, compRepo,
		cfg.Worker, cfg.Compensacao.JanelaAlertaPrazo, log.With().Str("componente", "worker").Logger())

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	publicLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst)
	authLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.IPRateLimit(publicLimiter))
		r.Get("/health", handleHealth)
		r.Get("/ready", handleReady(pool, redisClient))
	})

	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.Auth(jwtManager))
		r.Use(httpmiddleware.Empresa)
		r.Use(httpmiddleware.UserRateLimit(authLimiter))

		titulo.NewHandler(tituloService).RegisterRoutes(r)
		obrigacao.NewHandler(obrigacaoService).RegisterRoutes(r)
		compensacao.NewHandler(compService, uploader).RegisterRoutes(r)
		empresa.NewHandler(empresaService).RegisterRoutes(r)
		mercado.NewHandler(mercadoService).RegisterRoutes(r)
	})

	services := &Services{
		Titulos:      tituloService,
		Obrigacoes:   obrigacaoService,
		Compensacoes: compService,
		Empresas:     empresaService,
		Mercado:      mercadoService,
		Worker:       workerService,
	}
	return r, services, nil
}

func novoRegistrador(cfg *config.Config) (ledger.Registrador, error) {
	if cfg.Ledger.Simulado {
		log.Warn().Msg("ledger simulado ativo; registros não saem da memória")
		return ledger.NewSimulado(), nil
	}
	return ledger.New(ledger.Config{
		BaseURL: cfg.Ledger.BaseURL,
		APIKey:  cfg.Ledger.APIKey,
		Timeout: cfg.Ledger.Timeout,
	})
}

func novoUploader(cfg *config.Config) (storage.Uploader, error) {
	if cfg.Storage.Provider != "s3" {
		return storage.NoopUploader{}, nil
	}
	return storage.NewS3Uploader(storage.S3Config{
		Endpoint:     cfg.Storage.S3Endpoint,
		Region:       cfg.Storage.S3Region,
		Bucket:       cfg.Storage.S3Bucket,
		AccessKey:    cfg.Storage.S3AccessKey,
		SecretKey:    cfg.Storage.S3SecretKey,
		PublicDomain: cfg.Storage.S3PublicURL,
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(pool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "DB_DOWN", "banco indisponível", nil)
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				WriteError(w, http.StatusServiceUnavailable, "REDIS_DOWN", "redis indisponível", nil)
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
