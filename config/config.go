package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// Config holds the onboarding engine configuration.
type Config struct {
	Product   ProductConfig   `yaml:"product"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Auth      AuthConfig      `yaml:"auth"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Consent   ConsentConfig   `yaml:"consent"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ProductConfig describes the registration form of one product deployment.
type ProductConfig struct {
	Columns    []Column            `yaml:"columns"`
	Properties map[string]Property `yaml:"properties"`
	Required   []string            `yaml:"required"`
	IDConfig   IDConfig            `yaml:"id_config"`
	SSOInitURL string              `yaml:"sso_init_url"`
}

// Column places a field on the form. Value is the form-level default and
// Steps restricts the wizard steps showing the field (empty means the
// account-creation steps).
type Column struct {
	FieldName string   `yaml:"field_name"`
	Value     any      `yaml:"value"`
	Steps     []string `yaml:"steps"`
}

// Property is the schema entry for a field.
type Property struct {
	Type       string   `yaml:"type"`   // string, number, boolean
	Format     string   `yaml:"format"` // email, date, numeric
	Label      string   `yaml:"label"`
	Value      any      `yaml:"value"`
	MinLength  int      `yaml:"min_length"`
	MaxLength  int      `yaml:"max_length"`
	Pattern    string   `yaml:"pattern"`
	Enum       []string `yaml:"enum"`
	PatternMsg string   `yaml:"pattern_message"`
}

// IDConfig names the eligibility field.
type IDConfig struct {
	Field string `yaml:"field"`
}

// GatewayConfig configures the remote gateway client.
type GatewayConfig struct {
	BaseURL       string              `yaml:"base_url"`
	Timeout       time.Duration       `yaml:"timeout"`
	TokenExchange TokenExchangeConfig `yaml:"token_exchange"`
}

// TokenExchangeConfig enables RFC 8693 exchange of the visitor token before
// calling the remote API. Disabled while TokenURL is empty.
type TokenExchangeConfig struct {
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Audience     string `yaml:"audience"`
}

// AnalyticsConfig configures event triggering.
type AnalyticsConfig struct {
	Delay   time.Duration `yaml:"delay"`
	Sink    string        `yaml:"sink"` // http, nats, none
	NATSURL string        `yaml:"nats_url"`
	Subject string        `yaml:"subject"`
}

// AuthConfig configures bearer verification. Disabled while Issuer is empty.
type AuthConfig struct {
	Issuer   string `yaml:"issuer"`
	ClientID string `yaml:"client_id"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	SessionCookie string `yaml:"session_cookie"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// StoreConfig configures the decision audit trail. Disabled while DatabaseURL is empty.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// ConsentConfig toggles consent evaluation order.
type ConsentConfig struct {
	// ConflictCheckFirst runs the HIPAA conflict check before the
	// already-enrolled short-circuit.
	ConflictCheckFirst bool `yaml:"conflict_check_first"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Analytics sinks.
const (
	SinkHTTP = "http"
	SinkNATS = "nats"
	SinkNone = "none"
)

// Default returns a configuration for a typical membership product.
func Default() *Config {
	return &Config{
		Product: ProductConfig{
			Columns: []Column{
				{FieldName: "firstName"},
				{FieldName: "lastName"},
				{FieldName: models.FieldEmail, Steps: []string{"SIGN_IN", "CREATE_ACCOUNT", "CREATE_ACCOUNT_WITH_MEMBERSHIP", "PREFERENCES"}},
				{FieldName: models.FieldDOB},
				{FieldName: models.FieldGender},
				{FieldName: models.FieldPostalCode},
				{FieldName: models.FieldCountry, Value: "United States"},
				{FieldName: "memberId"},
			},
			Properties: map[string]Property{
				"firstName":            {Type: "string", Label: "First name", MaxLength: 50},
				"lastName":             {Type: "string", Label: "Last name", MaxLength: 50},
				models.FieldEmail:      {Type: "string", Format: "email", Label: "Email"},
				models.FieldDOB:        {Type: "string", Format: "date", Label: "Date of birth"},
				models.FieldGender:     {Type: "string", Label: "Gender", Enum: []string{"male", "female", "other", "MALE", "FEMALE", "OTHER"}},
				models.FieldPostalCode: {Type: "string", Label: "Zip code", Pattern: `^[0-9]{5}$`, PatternMsg: "must be a 5 digit zip code"},
				models.FieldCountry:    {Type: "string", Label: "Country"},
				"memberId":             {Type: "string", Label: "Member ID", MinLength: 3, MaxLength: 20},
			},
			Required: []string{"firstName", "lastName", models.FieldEmail, models.FieldDOB, models.FieldPostalCode, "memberId"},
			IDConfig: IDConfig{Field: "memberId"},
		},
		Gateway: GatewayConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Delay:   15 * time.Second,
			Sink:    SinkHTTP,
			Subject: "onboarding.analytics",
		},
		Server: ServerConfig{
			ListenAddr:    ":8090",
			SessionCookie: "onboarding_sid",
			MaxConcurrent: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML configuration file on top of the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ONBOARDING_GATEWAY_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("ONBOARDING_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("ONBOARDING_OIDC_ISSUER"); v != "" {
		c.Auth.Issuer = v
	}
	if v := os.Getenv("ONBOARDING_OIDC_CLIENT_ID"); v != "" {
		c.Auth.ClientID = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Analytics.NATSURL = v
		if c.Analytics.Sink == "" || c.Analytics.Sink == SinkHTTP {
			c.Analytics.Sink = SinkNATS
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := os.Getenv("ONBOARDING_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration once at startup. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.Product.validate()...)

	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		errs = append(errs, errors.New("gateway.base_url is required"))
	}
	switch c.Analytics.Sink {
	case "", SinkHTTP, SinkNone:
	case SinkNATS:
		if c.Analytics.NATSURL == "" {
			errs = append(errs, errors.New("analytics.nats_url is required for the nats sink"))
		}
		if c.Analytics.Subject == "" {
			errs = append(errs, errors.New("analytics.subject is required for the nats sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("analytics.sink %q is not one of http, nats, none", c.Analytics.Sink))
	}
	if c.Analytics.Delay < 0 {
		errs = append(errs, errors.New("analytics.delay must not be negative"))
	}
	if c.Auth.Issuer != "" && c.Auth.ClientID == "" {
		errs = append(errs, errors.New("auth.client_id is required when auth.issuer is set"))
	}
	if te := c.Gateway.TokenExchange; te.TokenURL != "" && (te.ClientID == "" || te.Audience == "") {
		errs = append(errs, errors.New("gateway.token_exchange requires client_id and audience"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (p ProductConfig) validate() []error {
	var errs []error
	if len(p.Columns) == 0 {
		errs = append(errs, errors.New("product.columns must not be empty"))
	}

	seen := make(map[string]struct{}, len(p.Columns))
	for i, col := range p.Columns {
		name := strings.TrimSpace(col.FieldName)
		if name == "" {
			errs = append(errs, fmt.Errorf("product.columns[%d] has an empty field_name", i))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("product.columns: duplicate field %q", name))
		}
		seen[name] = struct{}{}
		if _, ok := p.Properties[name]; !ok {
			errs = append(errs, fmt.Errorf("product.columns: field %q has no property definition", name))
		}
		for _, step := range col.Steps {
			if _, err := models.ParseWizardState(step); err != nil {
				errs = append(errs, fmt.Errorf("product.columns: field %q: %w", name, err))
			}
		}
	}

	if p.IDConfig.Field == "" {
		errs = append(errs, errors.New("product.id_config.field is required"))
	} else if _, ok := seen[p.IDConfig.Field]; !ok {
		errs = append(errs, fmt.Errorf("product.id_config.field %q is not a column", p.IDConfig.Field))
	}

	for _, name := range p.Required {
		if _, ok := seen[name]; !ok {
			errs = append(errs, fmt.Errorf("product.required: %q is not a column", name))
		}
	}

	for name, prop := range p.Properties {
		if prop.Pattern != "" {
			if _, err := regexp.Compile(prop.Pattern); err != nil {
				errs = append(errs, fmt.Errorf("product.properties.%s.pattern: %w", name, err))
			}
		}
		if prop.MaxLength > 0 && prop.MinLength > prop.MaxLength {
			errs = append(errs, fmt.Errorf("product.properties.%s: min_length exceeds max_length", name))
		}
	}
	return errs
}
