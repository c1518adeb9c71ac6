package config

// Config is the root of the YAML document described in spec.md §6.3. It is
// parsed once at startup by Load and subsequently only mutated through the
// Registry's single-writer-lock API (§4.1), never by re-parsing the file.
type Config struct {
	Server      ServerConfig             `yaml:"server"`
	Auth        AuthConfig               `yaml:"auth"`
	Providers   map[string]Provider      `yaml:"providers"`
	Channels    []*Channel               `yaml:"channels"`
	ModelGroups map[string]ModelGroup    `yaml:"model_groups"`
	Routing     RoutingConfig            `yaml:"routing"`
	Tasks       TasksConfig              `yaml:"tasks"`
}

type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

type AuthConfig struct {
	Enabled  bool        `yaml:"enabled"`
	APIToken string      `yaml:"api_token"`
	Admin    AdminConfig `yaml:"admin"`
}

type AdminConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AdminToken string `yaml:"admin_token"`
}

// Provider is read-only at runtime (§3.2).
type Provider struct {
	Name         string `yaml:"name"`
	DisplayName  string `yaml:"display_name"`
	BaseURL      string `yaml:"base_url"`
	AuthType     string `yaml:"auth_type"` // "bearer" | "x-api-key"
	AdapterClass string `yaml:"adapter_class"`
}

const (
	AuthTypeBearer  = "bearer"
	AuthTypeXAPIKey = "x-api-key"
)

// CurrencyExchange converts a channel's native pricing currency to the
// gateway's reporting currency (§3.1, §4.11, scenario 3 in §8).
type CurrencyExchange struct {
	Rate        float64 `yaml:"rate"`
	From        string  `yaml:"from"`
	To          string  `yaml:"to"`
	Description string  `yaml:"description,omitempty"`
}

type CostPerToken struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

type Performance struct {
	SpeedScore float64 `yaml:"speed_score"`
}

// Channel is one upstream account (§3.1). Id is unique and stable for the
// lifetime of the process; it is validated on Load and never reassigned.
type Channel struct {
	ID                  string            `yaml:"id"`
	Name                string            `yaml:"name"`
	Provider            string            `yaml:"provider"`
	BaseURL             string            `yaml:"base_url"`
	APIKey              string            `yaml:"api_key"`
	ModelName           string            `yaml:"model_name"`
	Priority            int               `yaml:"priority"`
	Enabled             bool              `yaml:"enabled"`
	Tags                []string          `yaml:"tags,omitempty"`
	MinRequestIntervalS float64           `yaml:"min_request_interval,omitempty"`
	CostPerToken        *CostPerToken     `yaml:"cost_per_token,omitempty"`
	CurrencyExchange    *CurrencyExchange `yaml:"currency_exchange,omitempty"`
	Performance         *Performance      `yaml:"performance,omitempty"`
	Capabilities        []string          `yaml:"capabilities,omitempty"`

	// disabledReason records why Load force-disabled the channel, surfaced
	// in status/admin read endpoints; empty unless Enabled was forced false.
	disabledReason string
}

// DisabledReason reports why a channel is disabled when it was force
// disabled by validation, empty otherwise.
func (c *Channel) DisabledReason() string { return c.disabledReason }

// SortRule is one entry of a named scoring strategy (§4.8).
type SortRule struct {
	Field  string  `yaml:"field"`
	Order  string  `yaml:"order"` // "asc" | "desc"
	Weight float64 `yaml:"weight"`
}

type ModelGroup struct {
	RoutingStrategy string   `yaml:"routing_strategy"`
	Filters         []string `yaml:"filters,omitempty"`
}

type RoutingConfig struct {
	DefaultStrategy   string                `yaml:"default_strategy"`
	SortingStrategies map[string][]SortRule `yaml:"sorting_strategies,omitempty"`
}

type TaskConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalS  int  `yaml:"interval_s"`
}

type TasksConfig struct {
	ModelDiscovery TaskConfig `yaml:"model_discovery"`
	HealthCheck    TaskConfig `yaml:"health_check"`
	CacheCleanup   TaskConfig `yaml:"cache_cleanup"`
}
