package cluster

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ClusterConfig holds engine settings
type ClusterConfig struct {
	ThresholdPixels float64 `yaml:"thresholdPixels" json:"thresholdPixels"`
	MaxZoom         int     `yaml:"maxZoom" json:"maxZoom"`
	MinZoom         int     `yaml:"minZoom" json:"minZoom"`
	DefaultZoom     int     `yaml:"defaultZoom" json:"defaultZoom"`
	DuplicatePolicy string  `yaml:"duplicatePolicy" json:"duplicatePolicy"` // first or reject
}

// TrackerConfig holds view state settings
type TrackerConfig struct {
	MaxMarkers   int        `yaml:"maxMarkers" json:"maxMarkers"`
	NearestLimit int        `yaml:"nearestLimit" json:"nearestLimit"`
	Timeline     *YearRange `yaml:"timeline,omitempty" json:"timeline,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker      string `yaml:"broker" json:"broker"`
	TopicPrefix string `yaml:"topicPrefix" json:"topicPrefix"`
	ClientID    string `yaml:"clientId" json:"clientId"`
	Username    string `yaml:"username,omitempty" json:"username,omitempty"`
	Password    string `yaml:"password,omitempty" json:"password,omitempty"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json or console
}

// Config represents the full configuration file
type Config struct {
	Cluster ClusterConfig `yaml:"cluster" json:"cluster"`
	Tracker TrackerConfig `yaml:"tracker" json:"tracker"`
	MQTT    MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	c := &Config{
		Cluster: ClusterConfig{
			ThresholdPixels: DefaultThreshold,
			MaxZoom:         DefaultMaxZoom,
			DefaultZoom:     13,
		},
		Tracker: TrackerConfig{
			MaxMarkers:   DefaultRingCapacity,
			NearestLimit: DefaultNearestLimit,
		},
		HTTP: HTTPConfig{Port: 8080},
	}
	c.applyDefaults()
	return c
}

// applyDefaults fills empty strings. Numeric defaults come from
// DefaultConfig, which LoadConfig decodes onto, so an explicit zero in the
// file is kept.
func (c *Config) applyDefaults() {
	if c.Cluster.DuplicatePolicy == "" {
		c.Cluster.DuplicatePolicy = string(DuplicateFirstWins)
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "photocluster"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "photocluster"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// applyEnv overrides settings from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_TOPIC_PREFIX"); v != "" {
		c.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Cluster.ThresholdPixels < 0 {
		return fmt.Errorf("cluster.thresholdPixels must not be negative")
	}
	if c.Cluster.MinZoom < 0 {
		return fmt.Errorf("cluster.minZoom must not be negative")
	}
	if c.Cluster.MinZoom > c.Cluster.MaxZoom {
		return fmt.Errorf("cluster.minZoom (%d) exceeds cluster.maxZoom (%d)", c.Cluster.MinZoom, c.Cluster.MaxZoom)
	}
	if _, err := ParseDuplicatePolicy(c.Cluster.DuplicatePolicy); err != nil {
		return fmt.Errorf("cluster.duplicatePolicy: %w", err)
	}
	if c.Tracker.MaxMarkers < 0 {
		return fmt.Errorf("tracker.maxMarkers must not be negative")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	return nil
}

// LoadConfig loads the configuration from a YAML file, applies defaults and
// environment overrides, then validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.applyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault behaves like LoadConfig but starts from DefaultConfig
// when path does not exist. Environment overrides still apply.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultConfig()
		config.applyEnv()
		if err := config.Validate(); err != nil {
			return nil, err
		}
		return config, nil
	}
	return LoadConfig(path)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EngineOptions converts the cluster section into engine options
func (c *Config) EngineOptions() ([]Option, error) {
	policy, err := ParseDuplicatePolicy(c.Cluster.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithThreshold(c.Cluster.ThresholdPixels),
		WithMaxZoom(c.Cluster.MaxZoom),
		WithMinZoom(c.Cluster.MinZoom),
		WithDuplicatePolicy(policy),
	}, nil
}

// TrackerOptions converts the tracker section into tracker options
func (c *Config) TrackerOptions() []TrackerOption {
	return []TrackerOption{
		WithCapacity(c.Tracker.MaxMarkers),
		WithNearestLimit(c.Tracker.NearestLimit),
		WithInitialZoom(c.Cluster.DefaultZoom),
	}
}
