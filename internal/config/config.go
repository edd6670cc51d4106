// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App       AppConfig              `yaml:"app"`
	Position  PositionConfig         `yaml:"position"`
	Venues    map[string]VenueConfig `yaml:"venues"`
	Lender    LenderConfig           `yaml:"lender"`
	Safety    SafetyConfig           `yaml:"safety"`
	Rewards   RewardsConfig          `yaml:"rewards"`
	Feed      FeedConfig             `yaml:"feed"`
	Keeper    KeeperConfig           `yaml:"keeper"`
	Alerts    AlertsConfig           `yaml:"alerts"`
	System    SystemConfig           `yaml:"system"`
	Telemetry TelemetryConfig        `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	CurrentVenue string `yaml:"current_venue"`
	// StatePath is the SQLite file holding engine state. Empty keeps state
	// in memory only.
	StatePath string `yaml:"state_path"`
}

// PositionConfig contains the leverage parameters of the managed position
type PositionConfig struct {
	BaseAsset              string  `yaml:"base_asset"`
	CollateralAsset        string  `yaml:"collateral_asset"`
	TargetLtvBps           int64   `yaml:"target_ltv_bps"`
	SafetyBufferBps        int64   `yaml:"safety_buffer_bps"`
	MinTargetLtvBps        int64   `yaml:"min_target_ltv_bps"`
	MaxTargetLtvBps        int64   `yaml:"max_target_ltv_bps"`
	HealthFactorFloor      float64 `yaml:"health_factor_floor"`
	SwapSlippageBps        int64   `yaml:"swap_slippage_bps"`
	GovernanceDelaySeconds int     `yaml:"governance_delay_seconds"`
}

// VenueConfig contains venue-specific configuration
type VenueConfig struct {
	Family            string  `yaml:"family"` // pool or shares
	Asset             string  `yaml:"asset"`
	ShareAsset        string  `yaml:"share_asset"` // shares family only
	MaxLtvBps         int64   `yaml:"max_ltv_bps"`
	SupplyAPR         float64 `yaml:"supply_apr"`
	BorrowAPR         float64 `yaml:"borrow_apr"`
	InitialSharePrice float64 `yaml:"initial_share_price"`
}

// LenderConfig contains bridge lender settings
type LenderConfig struct {
	Name       string `yaml:"name"`
	PremiumBps int64  `yaml:"premium_bps"`
}

// SafetyConfig contains the profitability gate and depeg guard settings
type SafetyConfig struct {
	BorrowRateCeiling  float64 `yaml:"borrow_rate_ceiling"`
	MinNetSpread       float64 `yaml:"min_net_spread"`
	DepegAsset         string  `yaml:"depeg_asset"`
	DepegMaxAgeSeconds int     `yaml:"depeg_max_age_seconds"`
	DepegMaxDevBps     int64   `yaml:"depeg_max_deviation_bps"`
}

// RewardsConfig contains reward compounding settings
type RewardsConfig struct {
	Enabled         bool     `yaml:"enabled"`
	IntervalSeconds int      `yaml:"interval_seconds" validate:"min=1,max=86400"`
	MinClaim        float64  `yaml:"min_claim"`
	SlippageBps     int64    `yaml:"slippage_bps"`
	AllowedTokens   []string `yaml:"allowed_tokens"`
}

// FeedConfig contains price feed settings
type FeedConfig struct {
	Source             string  `yaml:"source"` // fixed or websocket
	URL                string  `yaml:"url"`
	APIKey             Secret  `yaml:"api_key"`
	FixedPrice         float64 `yaml:"fixed_price"`
	PollIntervalMillis int     `yaml:"poll_interval_millis"`
	RateLimitPerSecond int     `yaml:"rate_limit_per_second"`
}

// KeeperConfig contains the periodic maintenance loop settings
type KeeperConfig struct {
	Enabled          bool `yaml:"enabled"`
	IntervalSeconds  int  `yaml:"interval_seconds" validate:"min=1,max=86400"`
	MaxRetries       int  `yaml:"max_retries" validate:"min=0,max=10"`
	WorkerPoolSize   int  `yaml:"worker_pool_size" validate:"min=1,max=100"`
	WorkerPoolBuffer int  `yaml:"worker_pool_buffer" validate:"min=1,max=10000"`
}

// AlertsConfig contains operator notification settings. An empty credential
// disables the channel.
type AlertsConfig struct {
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	UnwindOnExit bool   `yaml:"unwind_on_exit"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validatePositionConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateVenues(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateLenderConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSafetyConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateFeedConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateKeeperConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if c.App.CurrentVenue == "" {
		return ValidationError{
			Field:   "app.current_venue",
			Message: "a venue must be selected",
		}
	}
	if _, exists := c.Venues[c.App.CurrentVenue]; !exists {
		return ValidationError{
			Field:   "app.current_venue",
			Value:   c.App.CurrentVenue,
			Message: "venue configuration not found in venues section",
		}
	}
	return nil
}

func (c *Config) validatePositionConfig() error {
	p := &c.Position
	if p.BaseAsset == "" {
		return ValidationError{
			Field:   "position.base_asset",
			Message: "base asset is required",
		}
	}
	if p.CollateralAsset == "" {
		p.CollateralAsset = p.BaseAsset
	}
	if p.MinTargetLtvBps <= 0 || p.MaxTargetLtvBps >= 10_000 || p.MinTargetLtvBps > p.MaxTargetLtvBps {
		return ValidationError{
			Field:   "position.min_target_ltv_bps",
			Value:   fmt.Sprintf("[%d, %d]", p.MinTargetLtvBps, p.MaxTargetLtvBps),
			Message: "LTV bounds must satisfy 0 < min <= max < 10000",
		}
	}
	if p.TargetLtvBps < p.MinTargetLtvBps || p.TargetLtvBps > p.MaxTargetLtvBps {
		return ValidationError{
			Field:   "position.target_ltv_bps",
			Value:   p.TargetLtvBps,
			Message: fmt.Sprintf("must lie within [%d, %d]", p.MinTargetLtvBps, p.MaxTargetLtvBps),
		}
	}
	if p.SafetyBufferBps < 0 || p.SafetyBufferBps >= 10_000 {
		return ValidationError{
			Field:   "position.safety_buffer_bps",
			Value:   p.SafetyBufferBps,
			Message: "must lie within [0, 10000)",
		}
	}
	if p.HealthFactorFloor < 1.0 {
		return ValidationError{
			Field:   "position.health_factor_floor",
			Value:   p.HealthFactorFloor,
			Message: "must be at least 1.0",
		}
	}
	if p.SwapSlippageBps < 0 || p.SwapSlippageBps >= 10_000 {
		return ValidationError{
			Field:   "position.swap_slippage_bps",
			Value:   p.SwapSlippageBps,
			Message: "must lie within [0, 10000)",
		}
	}
	return nil
}

func (c *Config) validateVenues() error {
	if len(c.Venues) == 0 {
		return ValidationError{
			Field:   "venues",
			Message: "at least one venue must be configured",
		}
	}

	validFamilies := []string{"pool", "shares"}
	for name, venue := range c.Venues {
		if !contains(validFamilies, venue.Family) {
			return ValidationError{
				Field:   fmt.Sprintf("venues.%s.family", name),
				Value:   venue.Family,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(validFamilies, ", ")),
			}
		}
		if venue.Asset == "" {
			return ValidationError{
				Field:   fmt.Sprintf("venues.%s.asset", name),
				Message: "asset is required",
			}
		}
		if venue.Family == "shares" && venue.ShareAsset == "" {
			return ValidationError{
				Field:   fmt.Sprintf("venues.%s.share_asset", name),
				Message: "share asset is required for the shares family",
			}
		}
		if venue.MaxLtvBps <= 0 || venue.MaxLtvBps >= 10_000 {
			return ValidationError{
				Field:   fmt.Sprintf("venues.%s.max_ltv_bps", name),
				Value:   venue.MaxLtvBps,
				Message: "must lie within (0, 10000)",
			}
		}
	}
	return nil
}

func (c *Config) validateLenderConfig() error {
	if c.Lender.PremiumBps < 0 || c.Lender.PremiumBps >= 10_000 {
		return ValidationError{
			Field:   "lender.premium_bps",
			Value:   c.Lender.PremiumBps,
			Message: "must lie within [0, 10000)",
		}
	}
	return nil
}

func (c *Config) validateSafetyConfig() error {
	if c.Safety.BorrowRateCeiling < 0 {
		return ValidationError{
			Field:   "safety.borrow_rate_ceiling",
			Value:   c.Safety.BorrowRateCeiling,
			Message: "must not be negative",
		}
	}
	if c.Safety.DepegAsset != "" {
		if c.Safety.DepegMaxAgeSeconds <= 0 {
			return ValidationError{
				Field:   "safety.depeg_max_age_seconds",
				Value:   c.Safety.DepegMaxAgeSeconds,
				Message: "must be positive when the depeg guard is enabled",
			}
		}
		if c.Safety.DepegMaxDevBps <= 0 {
			return ValidationError{
				Field:   "safety.depeg_max_deviation_bps",
				Value:   c.Safety.DepegMaxDevBps,
				Message: "must be positive when the depeg guard is enabled",
			}
		}
	}
	return nil
}

func (c *Config) validateFeedConfig() error {
	validSources := []string{"", "fixed", "websocket", "http"}
	if !contains(validSources, c.Feed.Source) {
		return ValidationError{
			Field:   "feed.source",
			Value:   c.Feed.Source,
			Message: "must be one of: fixed, websocket, http",
		}
	}
	if (c.Feed.Source == "websocket" || c.Feed.Source == "http") && c.Feed.URL == "" {
		return ValidationError{
			Field:   "feed.url",
			Message: fmt.Sprintf("url is required for the %s source", c.Feed.Source),
		}
	}
	return nil
}

func (c *Config) validateKeeperConfig() error {
	if !c.Keeper.Enabled {
		return nil
	}
	if c.Keeper.IntervalSeconds < 1 || c.Keeper.IntervalSeconds > 86_400 {
		return ValidationError{
			Field:   "keeper.interval_seconds",
			Value:   c.Keeper.IntervalSeconds,
			Message: "must lie within [1, 86400]",
		}
	}
	if c.Keeper.MaxRetries < 0 || c.Keeper.MaxRetries > 10 {
		return ValidationError{
			Field:   "keeper.max_retries",
			Value:   c.Keeper.MaxRetries,
			Message: "must lie within [0, 10]",
		}
	}
	if c.Keeper.WorkerPoolSize < 1 || c.Keeper.WorkerPoolSize > 100 {
		return ValidationError{
			Field:   "keeper.worker_pool_size",
			Value:   c.Keeper.WorkerPoolSize,
			Message: "must lie within [1, 100]",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLogLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogLevels, ", ")),
		}
	}
	return nil
}

// expandEnvVars expands ${VAR} references in the YAML content
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a configuration suitable for local simulation
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			CurrentVenue: "aurora",
		},
		Position: PositionConfig{
			BaseAsset:              "USDC",
			CollateralAsset:        "USDC",
			TargetLtvBps:           7500,
			SafetyBufferBps:        100,
			MinTargetLtvBps:        3000,
			MaxTargetLtvBps:        9500,
			HealthFactorFloor:      1.01,
			SwapSlippageBps:        50,
			GovernanceDelaySeconds: 86_400,
		},
		Venues: map[string]VenueConfig{
			"aurora": {
				Family:    "pool",
				Asset:     "USDC",
				MaxLtvBps: 9300,
				SupplyAPR: 0.05,
				BorrowAPR: 0.03,
			},
		},
		Lender: LenderConfig{
			Name:       "bridge",
			PremiumBps: 9,
		},
		Safety: SafetyConfig{
			BorrowRateCeiling:  0.20,
			MinNetSpread:       0.0,
			DepegAsset:         "USDC",
			DepegMaxAgeSeconds: 300,
			DepegMaxDevBps:     100,
		},
		Rewards: RewardsConfig{
			Enabled:         true,
			IntervalSeconds: 3600,
			MinClaim:        1.0,
			SlippageBps:     50,
			AllowedTokens:   []string{"ARB", "OP"},
		},
		Feed: FeedConfig{
			Source:     "fixed",
			FixedPrice: 1.0,
		},
		Keeper: KeeperConfig{
			Enabled:          true,
			IntervalSeconds:  60,
			MaxRetries:       3,
			WorkerPoolSize:   4,
			WorkerPoolBuffer: 64,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
