package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr            string
		ShutdownTimeout time.Duration
		TrustedProxies  []string
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret       string
		TokenTTLMinutes int
		BcryptCost      int
	}
	CORS struct {
		Origins []string
	}
	RateLimit struct {
		Requests int
		Window   time.Duration
	}
	Quote struct {
		URL     string
		APIKey  string
		Timeout time.Duration
	}
	Mail struct {
		Host               string
		Port               int
		Username           string
		Password           string
		From               string
		To                 []string
		Timeout            time.Duration
		InsecureSkipVerify bool
	}
	Notify struct {
		Workers   int
		QueueSize int
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		URLTTL    time.Duration
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level string
	}
}

// TokenTTL converts the configured minutes; zero means tokens never expire.
func (c Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth jwt secret is required")
	}
	if c.RateLimit.Requests < 0 || c.RateLimit.Window < 0 {
		return errors.New("rate limit values must not be negative")
	}
	return nil
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// .env never overrides variables already present in the environment
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DATAPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.TrustedProxies = trimAll(cfg.Server.TrustedProxies)
	cfg.CORS.Origins = trimAll(cfg.CORS.Origins)
	cfg.Mail.To = trimAll(cfg.Mail.To)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.shutdowntimeout", 10*time.Second)
	v.SetDefault("server.trustedproxies", []string{})
	v.SetDefault("database.path", "data/datapulse.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 0)
	v.SetDefault("auth.bcryptcost", 10)
	v.SetDefault("cors.origins", []string{"*"})
	v.SetDefault("ratelimit.requests", 100)
	v.SetDefault("ratelimit.window", 15*time.Minute)
	v.SetDefault("quote.url", "")
	v.SetDefault("quote.apikey", "")
	v.SetDefault("quote.timeout", 10*time.Second)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.to", []string{})
	v.SetDefault("mail.timeout", 10*time.Second)
	v.SetDefault("mail.insecureskipverify", false)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.queuesize", 64)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "datapulse-exports")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.urlttl", 15*time.Minute)
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
