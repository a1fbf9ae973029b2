package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAllowedDomains is used when neither the config file nor the
// settings document names any domains.
var DefaultAllowedDomains = []string{"light", "climate", "switch", "fan", "media_player", "thermostat"}

type Config struct {
	HomeAssistant   HomeAssistantConfig   `yaml:"home_assistant"`
	SimpleFunctions SimpleFunctionsConfig `yaml:"simple_functions"`
	Storage         StorageConfig         `yaml:"storage"`
	HTTP            HTTPConfig            `yaml:"http"`
	Inbox           InboxConfig           `yaml:"inbox"`
	Intent          IntentConfig          `yaml:"intent"`
	Anthropic       AnthropicConfig       `yaml:"anthropic"`
	Gemini          GeminiConfig          `yaml:"gemini"`
	OpenAI          OpenAIConfig          `yaml:"openai"`
	Pushover        PushoverConfig        `yaml:"pushover"`
	MQTT            MQTTConfig            `yaml:"mqtt"`
	InfluxDB        InfluxDBConfig        `yaml:"influxdb"`
	Log             LogConfig             `yaml:"log"`
}

type HomeAssistantConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	AllowedDomains  []string          `yaml:"allowed_domains"`
	ExclusionDict   map[string]string `yaml:"exclusion_dict"`
	AllowedEntities []string          `yaml:"allowed_entities"`

	// SettingsFile points at a legacy system_settings.json document. When
	// set, its values replace the three filter lists above.
	SettingsFile     string `yaml:"settings_file"`
	SinglePassFilter bool   `yaml:"single_pass_filter"`
	RefreshSchedule  string `yaml:"refresh_schedule"`
}

type SimpleFunctionsConfig struct {
	CommandSchema         string            `yaml:"command_schema"`
	AllowInternetSearches bool              `yaml:"allow_internet_searches"`
	Timeout               time.Duration     `yaml:"timeout"`
	MaxResults            int               `yaml:"max_results"`
	UserAgent             string            `yaml:"user_agent"`
	Websites              map[string]string `yaml:"websites"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

type HTTPConfig struct {
	Addr       string `yaml:"addr"`
	AuthToken  string `yaml:"auth_token"`
	RateLimit  int    `yaml:"rate_limit"`
	RateWindow string `yaml:"rate_window"`
}

// InfluxDBConfig enables the command history writer. FlushInterval is in
// seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// InboxConfig enables a directory watcher that turns dropped .txt files
// into requests. An empty Dir disables it.
type InboxConfig struct {
	Dir          string        `yaml:"dir"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type IntentConfig struct {
	Provider string `yaml:"provider"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig configures Whisper transcription of uploaded audio. Without
// an API key audio requests are rejected.
type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Websites keys looked up by the simple functions.
const (
	SiteWikipedia         = "wikipedia"
	SiteWikimedia         = "wikimedia"
	SiteGDELT             = "gdelt"
	SiteOpenMeteoWeather  = "open-meteo weather"
	SiteOpenMeteoGeocoder = "open-meteo geocoding"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document after expanding environment references.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Config{
		SimpleFunctions: SimpleFunctionsConfig{AllowInternetSearches: true},
		Storage:         StorageConfig{WALMode: true},
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	c.HomeAssistant.setDefaults()

	if c.SimpleFunctions.CommandSchema == "" {
		c.SimpleFunctions.CommandSchema = "./command_schema.json"
	}
	if c.SimpleFunctions.Timeout == 0 {
		c.SimpleFunctions.Timeout = 10 * time.Second
	}
	if c.SimpleFunctions.MaxResults == 0 {
		c.SimpleFunctions.MaxResults = 3
	}
	if c.SimpleFunctions.UserAgent == "" {
		c.SimpleFunctions.UserAgent = "home-voice/1.0"
	}
	if c.SimpleFunctions.Websites == nil {
		c.SimpleFunctions.Websites = map[string]string{}
	}
	for name, url := range defaultWebsites {
		if c.SimpleFunctions.Websites[name] == "" {
			c.SimpleFunctions.Websites[name] = url
		}
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "./data/assistant.db"
	}
	if c.Storage.BusyTimeout == 0 {
		c.Storage.BusyTimeout = 5
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 30
	}
	if c.HTTP.RateWindow == "" {
		c.HTTP.RateWindow = "1m"
	}

	if c.Inbox.PollInterval == 0 {
		c.Inbox.PollInterval = 500 * time.Millisecond
	}

	if c.Intent.Provider == "" {
		c.Intent.Provider = "anthropic"
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.0-flash"
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "whisper-1"
	}

	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "home-voice/results"
	}

	if c.InfluxDB.Bucket == "" {
		c.InfluxDB.Bucket = "home_voice"
	}
	if c.InfluxDB.BatchSize == 0 {
		c.InfluxDB.BatchSize = 100
	}
	if c.InfluxDB.FlushInterval == 0 {
		c.InfluxDB.FlushInterval = 10
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (h *HomeAssistantConfig) setDefaults() {
	if h.BaseURL == "" {
		h.BaseURL = os.Getenv("HA_BASE_URL")
	}
	if h.Token == "" {
		h.Token = os.Getenv("HA_TOKEN")
	}
	if h.Timeout == 0 {
		h.Timeout = 10 * time.Second
	}
	if h.MaxRetries == 0 {
		h.MaxRetries = 3
	}
	if h.RetryDelay == 0 {
		h.RetryDelay = 2 * time.Second
	}
	if len(h.AllowedDomains) == 0 {
		h.AllowedDomains = append([]string(nil), DefaultAllowedDomains...)
	}
	if h.ExclusionDict == nil {
		h.ExclusionDict = map[string]string{}
	}
	if h.RefreshSchedule == "" {
		h.RefreshSchedule = "@every 10m"
	}
}

var defaultWebsites = map[string]string{
	SiteWikipedia:         "https://en.wikipedia.org/api/rest_v1",
	SiteWikimedia:         "https://en.wikipedia.org/api/rest_v1/page",
	SiteGDELT:             "https://api.gdeltproject.org/api/v2/doc/doc",
	SiteOpenMeteoWeather:  "https://api.open-meteo.com/v1/forecast",
	SiteOpenMeteoGeocoder: "https://geocoding-api.open-meteo.com/v1/search",
}
