package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del trader.
type Config struct {
	Chain   ChainConfig       `yaml:"chain"`
	Feed    FeedConfig        `yaml:"feed"`
	Trading map[string]string `yaml:"trading"` // semilla de la superficie clave/valor (ver Settings)
	Names   NamesConfig       `yaml:"names"`
	Storage StorageConfig     `yaml:"storage"`
	Audit   AuditConfig       `yaml:"audit"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Control ControlConfig     `yaml:"control"`
	Log     LogConfig         `yaml:"log"`
}

// ChainConfig controla la conexión RPC y la wallet.
type ChainConfig struct {
	RPCURL         string  `yaml:"rpc_url"`
	PrivateKey     string  `yaml:"private_key"` // hex, con o sin 0x; mejor vía BSC_PRIVATE_KEY
	ChainID        int64   `yaml:"chain_id"`
	RPCRatePerSec  float64 `yaml:"rpc_rate_per_sec"`
	RPCBurst       int     `yaml:"rpc_burst"`
	ReceiptTimeout int     `yaml:"receipt_timeout_seconds"`
}

// FeedConfig controla el cliente websocket del feed de precios.
type FeedConfig struct {
	URL                 string `yaml:"url"`
	ReconnectMinSeconds int    `yaml:"reconnect_min_seconds"`
	ReconnectMaxSeconds int    `yaml:"reconnect_max_seconds"`
	BufferSize          int    `yaml:"buffer_size"`
	MaxPairs            int    `yaml:"max_pairs"` // 0 = sin límite
}

// NamesConfig apunta a la blocklist de nombres.
type NamesConfig struct {
	File string `yaml:"file"` // JSON array de strings; vacío o ausente = sin bloqueos
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// AuditConfig controla los destinos del audit.
type AuditConfig struct {
	File         string `yaml:"file"`
	RedisAddr    string `yaml:"redis_addr"` // vacío = sin Redis
	RedisChannel string `yaml:"redis_channel"`
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

// ControlConfig controla la API HTTP de operaciones manuales.
type ControlConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodifica YAML y aplica overrides de entorno y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// ReceiptTimeout devuelve el timeout de espera de receipts como time.Duration.
func (c *Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.Chain.ReceiptTimeout) * time.Second
}

// ReconnectBackoff devuelve el rango de backoff de reconexión del feed.
func (c *Config) ReconnectBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Feed.ReconnectMinSeconds) * time.Second,
		time.Duration(c.Feed.ReconnectMaxSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BSC_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("BSC_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Audit.RedisAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "https://bsc-dataseed.bnbchain.org"
	}
	if cfg.Chain.ChainID <= 0 {
		cfg.Chain.ChainID = 56
	}
	if cfg.Chain.RPCRatePerSec <= 0 {
		cfg.Chain.RPCRatePerSec = 20
	}
	if cfg.Chain.RPCBurst <= 0 {
		cfg.Chain.RPCBurst = 10
	}
	if cfg.Chain.ReceiptTimeout <= 0 {
		cfg.Chain.ReceiptTimeout = 60
	}
	if cfg.Feed.ReconnectMinSeconds <= 0 {
		cfg.Feed.ReconnectMinSeconds = 1
	}
	if cfg.Feed.ReconnectMaxSeconds < cfg.Feed.ReconnectMinSeconds {
		cfg.Feed.ReconnectMaxSeconds = 30
	}
	if cfg.Feed.BufferSize <= 0 {
		cfg.Feed.BufferSize = 4096
	}
	if cfg.Trading == nil {
		cfg.Trading = map[string]string{}
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "autotrader.db"
	}
	if cfg.Audit.File == "" {
		cfg.Audit.File = "autotrader.log"
	}
	if cfg.Audit.RedisChannel == "" {
		cfg.Audit.RedisChannel = "autotrader:audit"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
