package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// IdentityConfig describe un usuario de test a provisionar.
type IdentityConfig struct {
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Secret    string   `yaml:"secret"` // semilla OTP: Base32 o texto plano
	Email     string   `yaml:"email"`
	FirstName string   `yaml:"first_name"`
	LastName  string   `yaml:"last_name"`
	Groups    []string `yaml:"groups"`
}

type Config struct {
	// Entorno objetivo (dev | stage | prod). Selecciona la URL del IdP y la
	// entrada del cache de secretos.
	Environment string `yaml:"environment"`

	// URL base del IdP por entorno. Reemplaza la tabla fija del script original.
	Environments map[string]string `yaml:"environments"`

	IdP struct {
		BaseURL            string        `yaml:"base_url"` // pisa Environments[Environment]
		Realm              string        `yaml:"realm"`
		AuthRealm          string        `yaml:"auth_realm"`
		ClientID           string        `yaml:"client_id"`
		ClientSecret       string        `yaml:"client_secret"` // si está, se usa client_credentials
		AdminUsername      string        `yaml:"admin_username"`
		AdminPassword      string        `yaml:"admin_password"`
		Timeout            time.Duration `yaml:"timeout"`
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"idp"`

	Identity   IdentityConfig   `yaml:"identity"`
	Identities []IdentityConfig `yaml:"identities"`

	Reconcile struct {
		Strategy         string        `yaml:"strategy"` // patch | recreate
		ResetExisting    bool          `yaml:"reset_existing"`
		PropagationDelay time.Duration `yaml:"propagation_delay"`
		OTPLabel         string        `yaml:"otp_label"`
		EmailDomain      string        `yaml:"email_domain"`
		Parallel         int           `yaml:"parallel"`
	} `yaml:"reconcile"`

	Detector struct {
		MinBase32Length int `yaml:"min_base32_length"`
	} `yaml:"detector"`

	Cache struct {
		Driver string        `yaml:"driver"` // file | redis | memory
		Dir    string        `yaml:"dir"`
		TTL    time.Duration `yaml:"ttl"` // redis/memory; 0 = sin expiración
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`

			// base64/hex de 32 bytes; vacío = valores en claro
			EncryptionKey string `yaml:"encryption_key"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Log struct {
		Env   string `yaml:"env"` // dev | prod
		Level string `yaml:"level"`
	} `yaml:"log"`

	Metrics struct {
		// Textfile: si no está vacío, al final de cada corrida se escriben las
		// métricas en formato Prometheus (node_exporter textfile collector).
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

const (
	DefaultUsername  = "test-user.journey"
	DefaultRealm     = "tamshai-corp"
	DefaultOTPLabel  = "E2E Test Authenticator"
	DefaultCacheDir  = ".totp-secrets"
	DefaultDomain    = "tamshai.com"
	DefaultAuthRealm = "master"
	DefaultClientID  = "admin-cli"
)

// DefaultEnvironments son las URLs conocidas del IdP.
func DefaultEnvironments() map[string]string {
	return map[string]string{
		"dev":   "https://www.tamshai-playground.local/auth",
		"stage": "https://www.tamshai.com/auth",
		"prod":  "https://keycloak-fn44nd7wba-uc.a.run.app/auth",
	}
}

var (
	ErrUnknownEnvironment = errors.New("config: unknown environment")
	ErrInvalid            = errors.New("config: invalid")
)

// Option aplica overrides de flags del CLI (prioridad: flags > env > YAML > defaults).
type Option func(*Config)

// WithEnvironment fuerza el entorno objetivo.
func WithEnvironment(env string) Option {
	return func(c *Config) {
		if strings.TrimSpace(env) != "" {
			c.Environment = env
		}
	}
}

// WithStrategy fuerza la estrategia de reconciliación.
func WithStrategy(strategy string) Option {
	return func(c *Config) {
		if strings.TrimSpace(strategy) != "" {
			c.Reconcile.Strategy = strings.ToLower(strategy)
		}
	}
}

// WithLogLevel fuerza el nivel de log.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		if strings.TrimSpace(level) != "" {
			c.Log.Level = level
		}
	}
}

// Load lee el YAML (si path no está vacío), aplica overrides de entorno y de
// flags, completa defaults y valida. Sin path se usan sólo defaults + entorno.
func Load(path string, opts ...Option) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	for _, opt := range opts {
		opt(&c)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environments == nil {
		c.Environments = DefaultEnvironments()
	}

	if c.IdP.Realm == "" {
		c.IdP.Realm = DefaultRealm
	}
	if c.IdP.AuthRealm == "" {
		c.IdP.AuthRealm = DefaultAuthRealm
	}
	if c.IdP.ClientID == "" {
		c.IdP.ClientID = DefaultClientID
	}
	if c.IdP.AdminUsername == "" {
		c.IdP.AdminUsername = "admin"
	}
	if c.IdP.Timeout == 0 {
		c.IdP.Timeout = 30 * time.Second
	}

	if c.Identity.Username == "" {
		c.Identity.Username = DefaultUsername
	}

	if c.Reconcile.Strategy == "" {
		c.Reconcile.Strategy = "patch"
	}
	if c.Reconcile.PropagationDelay == 0 {
		c.Reconcile.PropagationDelay = time.Second
	}
	if c.Reconcile.OTPLabel == "" {
		c.Reconcile.OTPLabel = DefaultOTPLabel
	}
	if c.Reconcile.EmailDomain == "" {
		c.Reconcile.EmailDomain = DefaultDomain
	}
	if c.Reconcile.Parallel <= 0 {
		c.Reconcile.Parallel = 1
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "file"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "totpsync"
	}

	if c.Log.Env == "" {
		c.Log.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate chequea valores que no dependen de la red.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Reconcile.Strategy) {
	case "patch", "recreate":
	default:
		return fmt.Errorf("%w: reconcile.strategy must be patch|recreate (got %q)", ErrInvalid, c.Reconcile.Strategy)
	}
	switch c.Cache.Driver {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("%w: cache.driver must be file|redis|memory (got %q)", ErrInvalid, c.Cache.Driver)
	}
	if c.Cache.Driver == "redis" && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return fmt.Errorf("%w: cache.redis.addr is required for the redis driver", ErrInvalid)
	}
	if c.Detector.MinBase32Length < 0 {
		return fmt.Errorf("%w: detector.min_base32_length must be >= 0", ErrInvalid)
	}
	if _, err := c.BaseURL(); err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, id := range c.AllIdentities() {
		if strings.TrimSpace(id.Username) == "" {
			return fmt.Errorf("%w: identities[].username is required", ErrInvalid)
		}
		key := strings.ToLower(id.Username)
		if seen[key] {
			return fmt.Errorf("%w: identity %q is listed more than once", ErrInvalid, id.Username)
		}
		seen[key] = true
	}
	return nil
}

// BaseURL resuelve la URL del IdP: idp.base_url > environments[environment].
func (c *Config) BaseURL() (string, error) {
	raw := strings.TrimSpace(c.IdP.BaseURL)
	if raw == "" {
		v, ok := c.Environments[c.Environment]
		if !ok {
			return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownEnvironment, c.Environment, strings.Join(c.EnvironmentNames(), ", "))
		}
		raw = v
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: idp base url %q", ErrInvalid, raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// EnvironmentNames retorna los entornos configurados ordenados.
func (c *Config) EnvironmentNames() []string {
	out := make([]string, 0, len(c.Environments))
	for k := range c.Environments {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AllIdentities retorna identity + identities[], completando nombre/email
// con los valores por defecto del script original.
func (c *Config) AllIdentities() []IdentityConfig {
	all := make([]IdentityConfig, 0, 1+len(c.Identities))
	if strings.TrimSpace(c.Identity.Username) != "" {
		all = append(all, c.Identity)
	}
	all = append(all, c.Identities...)
	for i := range all {
		id := &all[i]
		if id.Email == "" && id.Username != "" {
			id.Email = strings.ReplaceAll(id.Username, ".", "-") + "@" + c.Reconcile.EmailDomain
		}
		if id.FirstName == "" {
			id.FirstName = "Test"
		}
		if id.LastName == "" {
			id.LastName = "Journey"
		}
	}
	return all
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno.
// Es el único lugar del módulo que lee el entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("TEST_ENV"); ok {
		c.Environment = v
	}

	// IDP
	if v, ok := getEnvStr("KEYCLOAK_URL"); ok {
		c.IdP.BaseURL = v
	}
	if v, ok := getEnvStr("KEYCLOAK_REALM"); ok {
		c.IdP.Realm = v
	}
	if v, ok := getEnvStr("KEYCLOAK_ADMIN_CLIENT_ID"); ok {
		c.IdP.ClientID = v
	}
	if v, ok := getEnvStr("KEYCLOAK_ADMIN_CLIENT_SECRET"); ok {
		c.IdP.ClientSecret = v
	}
	if v, ok := getEnvStr("KEYCLOAK_ADMIN_USERNAME"); ok {
		c.IdP.AdminUsername = v
	}
	if v, ok := getEnvStr("KEYCLOAK_ADMIN_PASSWORD"); ok {
		c.IdP.AdminPassword = v
	}
	if v, ok := getEnvDur("KEYCLOAK_TIMEOUT"); ok {
		c.IdP.Timeout = v
	}
	if v, ok := getEnvBool("KEYCLOAK_INSECURE_SKIP_VERIFY"); ok {
		c.IdP.InsecureSkipVerify = v
	}

	// IDENTITY
	if v, ok := getEnvStr("TEST_USERNAME"); ok {
		c.Identity.Username = v
	}
	if v, ok := getEnvStr("TEST_USER_PASSWORD"); ok {
		c.Identity.Password = v
	}
	if v, ok := getEnvStr("TEST_USER_TOTP_SECRET"); ok {
		c.Identity.Secret = v
	}
	if v, ok := getEnvCSV("TEST_USER_GROUPS"); ok {
		c.Identity.Groups = v
	}

	// RECONCILE
	if v, ok := getEnvStr("TOTP_RECONCILE_STRATEGY"); ok {
		c.Reconcile.Strategy = strings.ToLower(v)
	}
	if v, ok := getEnvBool("TOTP_RESET_EXISTING"); ok {
		c.Reconcile.ResetExisting = v
	}
	if v, ok := getEnvDur("TOTP_PROPAGATION_DELAY"); ok {
		c.Reconcile.PropagationDelay = v
	}
	if v, ok := getEnvInt("TOTP_MIN_BASE32_LENGTH"); ok {
		c.Detector.MinBase32Length = v
	}

	// CACHE
	if v, ok := getEnvStr("TOTP_CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("TOTP_CACHE_DIR"); ok {
		c.Cache.Dir = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("TOTP_CACHE_KEY"); ok {
		c.Cache.Redis.EncryptionKey = v
	}

	// LOG / METRICS
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.Log.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("METRICS_TEXTFILE"); ok {
		c.Metrics.Textfile = v
	}
}
