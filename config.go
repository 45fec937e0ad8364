package auth

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
)

// MinSigningKeyLength is the minimum HMAC key size in bytes
const MinSigningKeyLength = 32

// EnvConfig is a Config read from LINKLIFT_AUTH_* environment variables
type EnvConfig struct {
	SigningKey         string        `env:"LINKLIFT_AUTH_SIGNING_KEY,required"`
	Issuer             string        `env:"LINKLIFT_AUTH_ISSUER"                envDefault:"linklift"`
	AccessTokenTTL     time.Duration `env:"LINKLIFT_AUTH_ACCESS_TOKEN_TTL"      envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"LINKLIFT_AUTH_REFRESH_TOKEN_TTL"     envDefault:"168h"`
	RememberMeTokenTTL time.Duration `env:"LINKLIFT_AUTH_REMEMBER_ME_TOKEN_TTL" envDefault:"720h"`
	BcryptCost         int           `env:"LINKLIFT_AUTH_BCRYPT_COST"           envDefault:"12"`
	DatabaseDSN        string        `env:"LINKLIFT_AUTH_DATABASE_DSN"          envDefault:"file:linklift-auth.db?cache=shared"`
	UsedTokenRetention time.Duration `env:"LINKLIFT_AUTH_USED_TOKEN_RETENTION"  envDefault:"720h"`
	LogLevel           string        `env:"LINKLIFT_AUTH_LOG_LEVEL"             envDefault:"info"`
}

var _ Config = EnvConfig{}

// LoadConfig parses and validates the process environment
func LoadConfig() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, configError(err.Error())
	}
	return cfg, cfg.Validate()
}

// LoadConfigFrom parses and validates the given variables instead of the
// process environment.
func LoadConfigFrom(environment map[string]string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return EnvConfig{}, configError(err.Error())
	}
	return cfg, cfg.Validate()
}

func (c EnvConfig) Validate() error {
	if len(c.SigningKey) < MinSigningKeyLength {
		return configError("signing key must be at least 32 bytes")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.RememberMeTokenTTL <= 0 {
		return configError("token lifetimes must be positive")
	}
	if c.RememberMeTokenTTL < c.RefreshTokenTTL {
		return configError("remember me lifetime must not be shorter than the refresh lifetime")
	}
	if c.UsedTokenRetention < 0 {
		return configError("used token retention must not be negative")
	}
	return nil
}

func (c EnvConfig) GetSigningKey() string                { return c.SigningKey }
func (c EnvConfig) GetIssuer() string                    { return c.Issuer }
func (c EnvConfig) GetAccessTokenTTL() time.Duration     { return c.AccessTokenTTL }
func (c EnvConfig) GetRefreshTokenTTL() time.Duration    { return c.RefreshTokenTTL }
func (c EnvConfig) GetRememberMeTokenTTL() time.Duration { return c.RememberMeTokenTTL }
func (c EnvConfig) GetBcryptCost() int                   { return c.BcryptCost }
func (c EnvConfig) GetUsedTokenRetention() time.Duration { return c.UsedTokenRetention }
func (c EnvConfig) GetDatabaseDSN() string               { return c.DatabaseDSN }
func (c EnvConfig) GetLogLevel() string                  { return c.LogLevel }

func configError(msg string) error {
	return errors.New(msg, errors.CategoryValidation).
		WithTextCode("CONFIG_INVALID")
}
