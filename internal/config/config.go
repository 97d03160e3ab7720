package config

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
)

type InsightProvider string

const (
	InsightProviderNone   InsightProvider = ""
	InsightProviderOpenAI InsightProvider = "openai"
)

// MaxInsightRows is the largest sample ever sent to the language model.
const MaxInsightRows = 50

// Config holds the configuration for the chartwise server and its dependencies.
type Config struct {
	// Listen is the address the chartwise server will listen on.
	Listen string `yaml:"listen" mapstructure:"listen"`
	// ClientURL is the base URL of the web client, used for password reset links.
	ClientURL string `yaml:"client_url" mapstructure:"client_url"`
	// LogLevel is the log level used when no --log-level flag is given.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// CORSOrigins lists the origins allowed to call the API. "*" allows all.
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	// Database holds the database configuration.
	Database *DatabaseConfig `yaml:"database" mapstructure:"database"`
	// Auth holds the authentication configuration.
	Auth *AuthConfig `yaml:"auth" mapstructure:"auth"`
	// Upload holds the spreadsheet upload policy.
	Upload *UploadConfig `yaml:"upload" mapstructure:"upload"`
	// Insight holds the language model configuration.
	Insight *InsightConfig `yaml:"insight" mapstructure:"insight"`
	// Email holds the email configuration for password reset mails.
	Email *EmailConfig `yaml:"email" mapstructure:"email"`
	// Gravatar holds the configuration for Gravatar profile pictures.
	Gravatar *GravatarConfig `yaml:"gravatar" mapstructure:"gravatar"`
	// Janitor holds the configuration of the reset token cleanup job.
	Janitor *JanitorConfig `yaml:"janitor" mapstructure:"janitor"`
}

// DatabaseConfig holds the database configuration.
type DatabaseConfig struct {
	// Driver is either "sqlite" or "postgres".
	Driver DatabaseDriver `yaml:"driver" mapstructure:"driver"`
	// Path is the path to the sqlite database file.
	Path string `yaml:"path" mapstructure:"path"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
	// ConnectRetries is how often the initial connection is retried.
	ConnectRetries uint64 `yaml:"connect_retries" mapstructure:"connect_retries"`
	// ConnectRetryDelay is the fixed delay between connection attempts.
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay" mapstructure:"connect_retry_delay"`
}

// AuthConfig holds the authentication configuration.
type AuthConfig struct {
	// JWTSecret is the HMAC key used to sign bearer tokens.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	// TokenTTL is the lifetime of an issued bearer token.
	TokenTTL time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
	// ResetTokenTTL is the lifetime of a password reset token.
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl" mapstructure:"reset_token_ttl"`
	// AllowAdminSignup lets a registering client ask for the admin role.
	AllowAdminSignup bool `yaml:"allow_admin_signup" mapstructure:"allow_admin_signup"`
	// Federated holds the ID token login configuration.
	Federated *FederatedConfig `yaml:"federated" mapstructure:"federated"`
}

// FederatedConfig configures login with ID tokens from an OpenID Connect issuer, e.g. Firebase.
type FederatedConfig struct {
	// Enabled indicates whether federated login is enabled.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Issuer is the OIDC issuer URL, for Firebase https://securetoken.google.com/<project>.
	Issuer string `yaml:"issuer" mapstructure:"issuer"`
	// ClientID is the expected audience of the ID token.
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
}

// UploadConfig holds the upload policy.
type UploadConfig struct {
	// MaxSize is the largest accepted upload in bytes.
	MaxSize int64 `yaml:"max_size" mapstructure:"max_size"`
}

// InsightConfig holds the language model configuration.
type InsightConfig struct {
	// Provider selects the model provider. Empty disables insights.
	Provider InsightProvider `yaml:"provider" mapstructure:"provider"`
	APIKey   string          `yaml:"api_key" mapstructure:"api_key"`
	// BaseURL overrides the provider endpoint, for OpenAI compatible servers.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
	// Timeout bounds a single completion request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// MaxRows is the number of rows sent as sample, at most 50.
	MaxRows     int     `yaml:"max_rows" mapstructure:"max_rows"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EmailConfig holds the email configuration.
type EmailConfig struct {
	// Enabled indicates whether emails are sent.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// SMTPHost is the SMTP server host.
	SMTPHost string `yaml:"smtp_host" mapstructure:"smtp_host"`
	// SMTPPort is the SMTP server port.
	SMTPPort int `yaml:"smtp_port" mapstructure:"smtp_port"`
	// Username is the SMTP username.
	Username string `yaml:"username" mapstructure:"username"`
	// Password is the SMTP password.
	Password string `yaml:"password" mapstructure:"password"`
	// FromEmail is the email address from which mails are sent.
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
	// FromName is the name from which mails are sent.
	FromName string `yaml:"from_name" mapstructure:"from_name"`
	// UseTLS indicates whether to use TLS for the SMTP connection.
	UseTLS bool `yaml:"use_tls" mapstructure:"use_tls"`
	// UseSSL indicates whether to use SSL for the SMTP connection.
	UseSSL bool `yaml:"use_ssl" mapstructure:"use_ssl"`
	// InsecureSkipVerify indicates whether to skip TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// GravatarConfig holds the configuration for Gravatar profile pictures.
type GravatarConfig struct {
	// Enabled indicates whether Gravatar support is enabled.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// DefaultImage is the default image to use when no Gravatar is found.
	// Valid values: "404", "mp", "identicon", "monsterid", "wavatar", "retro", "robohash", "blank"
	DefaultImage string `yaml:"default_image" mapstructure:"default_image"`
	// Rating is the maximum rating for Gravatar images.
	// Valid values: "g", "pg", "r", "x"
	Rating string `yaml:"rating" mapstructure:"rating"`
	// Size is the size of the Gravatar image in pixels (1-2048).
	Size int `yaml:"size" mapstructure:"size"`
}

// JanitorConfig holds the configuration of the reset token cleanup job.
type JanitorConfig struct {
	// Schedule is a cron expression, e.g. "0 * * * *" for every hour.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

// Load reads the configuration from the specified path and returns a Config struct.
// If path is empty, it will use default search paths for config files.
func Load(path string) (*Config, error) {
	v := viper.New()

	// bind some weirdly unsupported nested env vars
	bindNestedEnv(v)

	// Set default values
	setDefaults(v)

	// Configure Viper
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CHARTWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFileFound bool
	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search for config in common locations
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.chartwise")
		v.AddConfigPath("/etc/chartwise")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file is found, use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		configFileFound = true
	}

	if configFileFound {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	sanitizeConfig(&c)

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:5000")
	v.SetDefault("client_url", "http://localhost:3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", DatabaseDriverSQLite)
	v.SetDefault("database.path", "./data/chartwise.db")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.connect_retry_delay", 5*time.Second)

	// Auth defaults
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.reset_token_ttl", time.Hour)
	v.SetDefault("auth.allow_admin_signup", false)
	v.SetDefault("auth.federated.enabled", false)

	// Upload defaults
	v.SetDefault("upload.max_size", 50<<20)

	// Insight defaults
	v.SetDefault("insight.provider", InsightProviderNone)
	v.SetDefault("insight.model", "gpt-3.5-turbo")
	v.SetDefault("insight.timeout", 30*time.Second)
	v.SetDefault("insight.max_rows", MaxInsightRows)
	v.SetDefault("insight.temperature", 0.7)
	v.SetDefault("insight.max_tokens", 100)

	// Email defaults
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from_name", "Chartwise")
	v.SetDefault("email.use_tls", true)
	v.SetDefault("email.use_ssl", false)
	v.SetDefault("email.insecure_skip_verify", false)

	// Gravatar defaults
	v.SetDefault("gravatar.enabled", false)
	v.SetDefault("gravatar.default_image", "identicon")
	v.SetDefault("gravatar.rating", "g")
	v.SetDefault("gravatar.size", 80)

	v.SetDefault("janitor.schedule", "0 * * * *")
}

// secrets have no default, so AutomaticEnv alone does not pick them up.
func bindNestedEnv(v *viper.Viper) {
	v.MustBindEnv("auth.jwt_secret", "CHARTWISE_AUTH_JWT_SECRET")
	v.MustBindEnv("database.dsn", "CHARTWISE_DATABASE_DSN")
	v.MustBindEnv("insight.api_key", "CHARTWISE_INSIGHT_API_KEY")
	v.MustBindEnv("insight.base_url", "CHARTWISE_INSIGHT_BASE_URL")
	v.MustBindEnv("auth.federated.issuer", "CHARTWISE_AUTH_FEDERATED_ISSUER")
	v.MustBindEnv("auth.federated.client_id", "CHARTWISE_AUTH_FEDERATED_CLIENT_ID")
}

// validateConfig validates the configuration.
func validateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("missing chartwise config")
	}

	if c.Auth == nil || c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.Federated != nil && c.Auth.Federated.Enabled {
		if c.Auth.Federated.Issuer == "" || c.Auth.Federated.ClientID == "" {
			return fmt.Errorf("auth.federated.issuer and auth.federated.client_id are required when federated login is enabled")
		}
	}

	switch c.Database.Driver {
	case DatabaseDriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DatabaseDriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}

	switch c.Insight.Provider {
	case InsightProviderNone:
	case InsightProviderOpenAI:
		if c.Insight.APIKey == "" && c.Insight.BaseURL == "" {
			return fmt.Errorf("insight.api_key is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown insight provider %q", c.Insight.Provider)
	}
	if c.Insight.Timeout <= 0 {
		return fmt.Errorf("insight.timeout must be positive")
	}

	if c.Email != nil && c.Email.Enabled {
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("email.smtp_host is required when email is enabled")
		}
		if _, err := mail.ParseAddress(c.Email.FromEmail); err != nil {
			return fmt.Errorf("email.from_email is invalid: %w", err)
		}
	}

	if c.Janitor == nil || c.Janitor.Schedule == "" {
		return fmt.Errorf("janitor.schedule is required")
	}

	return nil
}

// sanitizeConfig sanitizes the configuration values.
func sanitizeConfig(c *Config) {
	if c == nil {
		return
	}

	c.Listen = urlSanitize(c.Listen)
	c.ClientURL = urlSanitize(c.ClientURL)

	if c.Database != nil {
		c.Database.Driver = DatabaseDriver(strings.ToLower(string(c.Database.Driver)))
	}

	if c.Insight != nil {
		c.Insight.BaseURL = urlSanitize(c.Insight.BaseURL)
		c.Insight.Provider = InsightProvider(strings.ToLower(string(c.Insight.Provider)))
		if c.Insight.MaxRows <= 0 || c.Insight.MaxRows > MaxInsightRows {
			log.Warn("insight.max_rows out of range, using maximum", "value", c.Insight.MaxRows, "max", MaxInsightRows)
			c.Insight.MaxRows = MaxInsightRows
		}
	}

	if c.Auth != nil && c.Auth.Federated != nil {
		c.Auth.Federated.Issuer = urlSanitize(c.Auth.Federated.Issuer)
	}

	c.CORSOrigins = slices.DeleteFunc(c.CORSOrigins, func(o string) bool {
		return strings.TrimSpace(o) == ""
	})
	for i, o := range c.CORSOrigins {
		c.CORSOrigins[i] = urlSanitize(o)
	}
}

func urlSanitize(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}

// MaxUploadSize returns the upload limit in human readable form, e.g. "50 MiB".
func (c *Config) MaxUploadSize() string {
	return humanize.IBytes(uint64(c.Upload.MaxSize))
}
