package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	JWTSecret       string
	JWTAccessTTL    time.Duration
	AllowOrigins    []string
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	Ledger          LedgerConfig
	Worker          WorkerConfig
	Storage         StorageConfig
	Compensacao     CompensacaoConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LedgerConfig descreve o serviço externo de registro de ativos.
type LedgerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Simulado ativa o ledger em memória (desenvolvimento/testes).
	Simulado bool
}

// WorkerConfig controla os loops de processamento em segundo plano.
type WorkerConfig struct {
	Enabled            bool
	Interval           time.Duration
	VencimentoInterval time.Duration
}

// StorageConfig descreve o backend de documentos anexos.
type StorageConfig struct {
	Provider    string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

// CompensacaoConfig parametriza o motor de compensação.
type CompensacaoConfig struct {
	// JanelaAlertaPrazo define a antecedência do alerta de vencimento de créditos.
	JanelaAlertaPrazo time.Duration
	// LimitePool rejeita pools absurdamente grandes antes da otimização.
	LimitePool int
	// CacheSimulacaoTTL controla o cache de simulações no Redis.
	CacheSimulacaoTTL time.Duration
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL = accessTTL

	allowOrigins := strings.Split(getEnv("ALLOW_ORIGINS", ""), ",")
	cfg.AllowOrigins = nil
	for _, origin := range allowOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	cfg.Ledger.BaseURL = strings.TrimSpace(getEnv("LEDGER_BASE_URL", ""))
	cfg.Ledger.APIKey = strings.TrimSpace(getEnv("LEDGER_API_KEY", ""))
	cfg.Ledger.Simulado = parseBoolEnv("LEDGER_SIMULADO", cfg.Ledger.BaseURL == "")
	ledgerTimeout, err := parseDurationEnv("LEDGER_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Ledger.Timeout = ledgerTimeout
	if !cfg.Ledger.Simulado && cfg.Ledger.BaseURL == "" {
		return nil, errors.New("LEDGER_BASE_URL obrigatório quando LEDGER_SIMULADO=false")
	}

	cfg.Worker.Enabled = parseBoolEnv("WORKER_ENABLED", true)
	workerInterval, err := parseDurationEnv("WORKER_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Worker.Interval = workerInterval

	vencInterval, err := parseDurationEnv("WORKER_VENCIMENTO_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Worker.VencimentoInterval = vencInterval

	cfg.Storage.Provider = strings.TrimSpace(getEnv("STORAGE_PROVIDER", "noop"))
	cfg.Storage.S3Endpoint = getEnv("STORAGE_S3_ENDPOINT", "")
	cfg.Storage.S3Region = getEnv("STORAGE_S3_REGION", "auto")
	cfg.Storage.S3Bucket = getEnv("STORAGE_S3_BUCKET", "")
	cfg.Storage.S3AccessKey = getEnv("STORAGE_S3_ACCESS_KEY", "")
	cfg.Storage.S3SecretKey = getEnv("STORAGE_S3_SECRET_KEY", "")
	cfg.Storage.S3PublicURL = getEnv("STORAGE_S3_PUBLIC_URL", "")

	janela, err := parseDurationEnv("COMPENSACAO_JANELA_ALERTA", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Compensacao.JanelaAlertaPrazo = janela

	limiteStr := getEnv("COMPENSACAO_LIMITE_POOL", "10000")
	limite, err := strconv.Atoi(limiteStr)
	if err != nil || limite <= 0 {
		return nil, errors.New("COMPENSACAO_LIMITE_POOL inválido")
	}
	cfg.Compensacao.LimitePool = limite

	cacheTTL, err := parseDurationEnv("COMPENSACAO_CACHE_SIMULACAO_TTL", 60*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Compensacao.CacheSimulacaoTTL = cacheTTL

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseBoolEnv(key string, def bool) bool {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}
