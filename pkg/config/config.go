package config

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for signing server configuration
const (
	EnvPort                = "PORT"
	EnvDebug               = "SIGNER_DEBUG"
	EnvLogFormat           = "SIGNER_LOG_FORMAT"
	EnvCORSOrigins         = "SIGNER_CORS_ORIGINS"
	EnvMaxBodyBytes        = "SIGNER_MAX_BODY_BYTES"
	EnvRateLimitRPS        = "SIGNER_RATE_LIMIT_RPS"
	EnvRateLimitBurst      = "SIGNER_RATE_LIMIT_BURST"
	EnvAuthJWKSURL         = "SIGNER_AUTH_JWKS_URL"
	EnvAuthIssuer          = "SIGNER_AUTH_ISSUER"
	EnvAuthAudience        = "SIGNER_AUTH_AUDIENCE"
	EnvAuthRefreshInterval = "SIGNER_AUTH_REFRESH_INTERVAL"
	EnvMetricsEnabled      = "SIGNER_METRICS_ENABLED"
	EnvJournalBackend      = "SIGNER_JOURNAL_BACKEND"
	EnvJournalBadgerPath   = "SIGNER_JOURNAL_BADGER_PATH"
	EnvJournalRedisAddress = "SIGNER_JOURNAL_REDIS_ADDRESS"
	EnvJournalRedisPass    = "SIGNER_JOURNAL_REDIS_PASSWORD"
	EnvJournalRedisDB      = "SIGNER_JOURNAL_REDIS_DB"
	EnvJournalRedisPrefix  = "SIGNER_JOURNAL_REDIS_PREFIX"
	EnvShutdownTimeout     = "SIGNER_SHUTDOWN_TIMEOUT"
)

const (
	DefaultPort            = 3000
	DefaultMaxBodyBytes    = 100 << 10
	DefaultLogFormat       = "json"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRefreshInterval = 15 * time.Minute
	DefaultRedisKeyPrefix  = "signer:"
)

type JournalBackend string

const (
	JournalBackendNone   JournalBackend = "none"
	JournalBackendMemory JournalBackend = "memory"
	JournalBackendBadger JournalBackend = "badger"
	JournalBackendRedis  JournalBackend = "redis"
)

type ChainId uint64

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

// ChainIdToName names well-known chains in logs and metrics. Signing is not limited
// to these chains.
var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}

// ChainLabel returns the well-known name of chainID, or "other".
func ChainLabel(chainID *big.Int) string {
	if chainID == nil || !chainID.IsUint64() {
		return "other"
	}
	if name, ok := ChainIdToName[ChainId(chainID.Uint64())]; ok {
		return string(name)
	}
	return "other"
}

type RateLimitConfig struct {
	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64 `json:"requestsPerSecond" validate:"gte=0"`
	Burst             int     `json:"burst" validate:"gte=0"`
}

func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerSecond > 0
}

type AuthConfig struct {
	// An empty JWKSURL disables bearer authentication.
	JWKSURL         string        `json:"jwksUrl" validate:"omitempty,url"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
	RefreshInterval time.Duration `json:"refreshInterval" validate:"gte=0"`
}

func (a AuthConfig) Enabled() bool {
	return a.JWKSURL != ""
}

type JournalRedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db" validate:"gte=0,lte=15"`
	KeyPrefix string `json:"keyPrefix"`
}

type JournalConfig struct {
	Backend    JournalBackend     `json:"backend" validate:"oneof=none memory badger redis"`
	BadgerPath string             `json:"badgerPath"`
	Redis      JournalRedisConfig `json:"redis"`
}

// SigningServerConfig is everything the signing server needs. It is built once at
// startup and passed explicitly; nothing reads the environment after that.
type SigningServerConfig struct {
	Port            int             `json:"port" validate:"min=1,max=65535"`
	Debug           bool            `json:"debug"`
	LogFormat       string          `json:"logFormat" validate:"oneof=console json logfmt"`
	CORSOrigins     []string        `json:"corsOrigins" validate:"dive,required"`
	MaxBodyBytes    int64           `json:"maxBodyBytes" validate:"gt=0"`
	RateLimit       RateLimitConfig `json:"rateLimit"`
	Auth            AuthConfig      `json:"auth"`
	MetricsEnabled  bool            `json:"metricsEnabled"`
	Journal         JournalConfig   `json:"journal"`
	ShutdownTimeout time.Duration   `json:"shutdownTimeout" validate:"gt=0"`
}

// NewDefaultConfig returns a config that accepts every origin, logs JSON, and keeps
// no state.
func NewDefaultConfig() *SigningServerConfig {
	return &SigningServerConfig{
		Port:         DefaultPort,
		LogFormat:    DefaultLogFormat,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Auth: AuthConfig{
			RefreshInterval: DefaultRefreshInterval,
		},
		Journal: JournalConfig{
			Backend: JournalBackendNone,
			Redis: JournalRedisConfig{
				KeyPrefix: DefaultRedisKeyPrefix,
			},
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// AllowsAllOrigins is true when no explicit origins are configured or "*" is listed.
func (c *SigningServerConfig) AllowsAllOrigins() bool {
	if len(c.CORSOrigins) == 0 {
		return true
	}
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and the rules that span fields. All problems are
// reported together.
func (c *SigningServerConfig) Validate() error {
	allErrors := structErrors(c)

	if c.RateLimit.Enabled() && c.RateLimit.Burst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit", "burst"), c.RateLimit.Burst, "burst must be at least 1 when rate limiting is enabled"))
	}

	switch c.Journal.Backend {
	case JournalBackendBadger:
		if c.Journal.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("journal", "badgerPath"), "badgerPath is required for the badger journal"))
		}
	case JournalBackendRedis:
		if c.Journal.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("journal", "redis", "address"), "address is required for the redis journal"))
		}
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// structErrors runs the struct tag rules and maps each failure onto a field path.
func structErrors(c *SigningServerConfig) field.ErrorList {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return field.ErrorList{field.InternalError(nil, err)}
	}

	var allErrors field.ErrorList
	for _, fe := range validationErrors {
		// namespace is "SigningServerConfig.journal.backend"
		parts := strings.Split(fe.Namespace(), ".")
		path := field.NewPath(parts[1], parts[2:]...)
		allErrors = append(allErrors, field.Invalid(path, fe.Value(), ruleMessage(fe)))
	}
	return allErrors
}

func ruleMessage(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fmt.Sprintf("failed %s rule", fe.Tag())
	}
	return fmt.Sprintf("failed %s=%s rule", fe.Tag(), fe.Param())
}
