package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/issac1998/pos-relay/internal/compression"
	poserrors "github.com/issac1998/pos-relay/internal/errors"
	"github.com/issac1998/pos-relay/internal/logging"
)

// Environment variables that override file values
const (
	EnvClientID     = "POSRELAY_CLIENT_ID"
	EnvClientSecret = "POSRELAY_CLIENT_SECRET"
	EnvTokenURL     = "POSRELAY_TOKEN_URL"
	EnvStoreID      = "POSRELAY_STORE_ID"
	EnvLogLevel     = "POSRELAY_LOG_LEVEL"
)

// Config is the complete relay configuration
type Config struct {
	Channels []ChannelConfig
	Serial   SerialConfig
	Reader   ReaderConfig
	Store    StoreConfig
	API      APIConfig
	Dispatch DispatchConfig
	Audit    AuditConfig
	Ledger   LedgerConfig
	Admin    AdminConfig
	Logging  logging.Config
}

// ChannelConfig names one POS feed. Device is a serial port name
// (COM3, /dev/ttyS0), tcp://host:port or file://path.
type ChannelConfig struct {
	Name     string `yaml:"name"`
	Device   string `yaml:"device"`
	Terminal string `yaml:"terminal"`
}

type SerialConfig struct {
	BaudRate    int
	DataBits    int
	Parity      string
	StopBits    string
	ReadTimeout time.Duration
}

type ReaderConfig struct {
	ReconnectBackoff time.Duration
	MaxMessageSize   int
}

type StoreConfig struct {
	ID                  string `yaml:"id"`
	ForceID             bool   `yaml:"force_id"`
	LocationDescription string `yaml:"location_description"`
	Timezone            string `yaml:"timezone"`

	location *time.Location
}

// Location returns the store's local time zone. Valid after Validate.
func (s StoreConfig) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

type APIConfig struct {
	TokenURL          string
	ClientID          string
	ClientSecret      string
	PartnerHeader     string
	CashOperationsURL string
	TransactionsURL   string
	RefundsURL        string
	Timeout           time.Duration
	TokenRefreshSkew  time.Duration
}

type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type AuditConfig struct {
	LogDir          string `yaml:"log_dir"`
	EventsDir       string `yaml:"events_dir"`
	TransactionsDir string `yaml:"transactions_dir"`
	SnippetLen      int    `yaml:"snippet_len"`
}

type LedgerConfig struct {
	Enabled     bool
	Path        string
	Compression compression.CompressionType
}

type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// configYAML is a temporary struct for YAML parsing
type configYAML struct {
	Channels []ChannelConfig `yaml:"channels"`
	Serial   struct {
		BaudRate    int    `yaml:"baud_rate"`
		DataBits    int    `yaml:"data_bits"`
		Parity      string `yaml:"parity"`
		StopBits    string `yaml:"stop_bits"`
		ReadTimeout string `yaml:"read_timeout"`
	} `yaml:"serial"`
	Reader struct {
		ReconnectBackoff string `yaml:"reconnect_backoff"`
		MaxMessageSize   int    `yaml:"max_message_size"`
	} `yaml:"reader"`
	Store StoreConfig `yaml:"store"`
	API   struct {
		TokenURL          string `yaml:"token_url"`
		ClientID          string `yaml:"client_id"`
		ClientSecret      string `yaml:"client_secret"`
		PartnerHeader     string `yaml:"partner_header"`
		CashOperationsURL string `yaml:"cash_operations_url"`
		TransactionsURL   string `yaml:"transactions_url"`
		RefundsURL        string `yaml:"refunds_url"`
		Timeout           string `yaml:"timeout"`
		TokenRefreshSkew  string `yaml:"token_refresh_skew"`
	} `yaml:"api"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Audit    AuditConfig    `yaml:"audit"`
	Ledger   struct {
		Enabled     *bool  `yaml:"enabled"`
		Path        string `yaml:"path"`
		Compression string `yaml:"compression"`
	} `yaml:"ledger"`
	Admin   AdminConfig    `yaml:"admin"`
	Logging logging.Config `yaml:"logging"`
}

// Load reads a YAML config file, applies defaults and environment
// overrides, and validates the result. An empty path yields defaults.
func Load(configPath string) (*Config, error) {
	var raw configYAML
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, poserrors.Config("failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, poserrors.Config("failed to parse config", err)
		}
	}

	cfg, err := fromYAML(&raw)
	if err != nil {
		return nil, err
	}

	cfg.setDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment.
// Missing files are ignored; existing variables are not overwritten.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return poserrors.Config(fmt.Sprintf("failed to load %s", f), err)
		}
	}
	return nil
}

func fromYAML(raw *configYAML) (*Config, error) {
	readTimeout, err := parseDuration(raw.Serial.ReadTimeout)
	if err != nil {
		return nil, poserrors.Config("invalid serial.read_timeout", err)
	}
	backoff, err := parseDuration(raw.Reader.ReconnectBackoff)
	if err != nil {
		return nil, poserrors.Config("invalid reader.reconnect_backoff", err)
	}
	timeout, err := parseDuration(raw.API.Timeout)
	if err != nil {
		return nil, poserrors.Config("invalid api.timeout", err)
	}
	skew, err := parseDuration(raw.API.TokenRefreshSkew)
	if err != nil {
		return nil, poserrors.Config("invalid api.token_refresh_skew", err)
	}
	codec, err := compression.ParseType(raw.Ledger.Compression)
	if err != nil {
		return nil, poserrors.Config("invalid ledger.compression", err)
	}

	ledgerEnabled := true
	if raw.Ledger.Enabled != nil {
		ledgerEnabled = *raw.Ledger.Enabled
	}

	return &Config{
		Channels: raw.Channels,
		Serial: SerialConfig{
			BaudRate:    raw.Serial.BaudRate,
			DataBits:    raw.Serial.DataBits,
			Parity:      raw.Serial.Parity,
			StopBits:    raw.Serial.StopBits,
			ReadTimeout: readTimeout,
		},
		Reader: ReaderConfig{
			ReconnectBackoff: backoff,
			MaxMessageSize:   raw.Reader.MaxMessageSize,
		},
		Store: raw.Store,
		API: APIConfig{
			TokenURL:          raw.API.TokenURL,
			ClientID:          raw.API.ClientID,
			ClientSecret:      raw.API.ClientSecret,
			PartnerHeader:     raw.API.PartnerHeader,
			CashOperationsURL: raw.API.CashOperationsURL,
			TransactionsURL:   raw.API.TransactionsURL,
			RefundsURL:        raw.API.RefundsURL,
			Timeout:           timeout,
			TokenRefreshSkew:  skew,
		},
		Dispatch: raw.Dispatch,
		Audit:    raw.Audit,
		Ledger: LedgerConfig{
			Enabled:     ledgerEnabled,
			Path:        raw.Ledger.Path,
			Compression: codec,
		},
		Admin:   raw.Admin,
		Logging: raw.Logging,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func (c *Config) setDefaults() {
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = 9600
	}
	if c.Serial.DataBits == 0 {
		c.Serial.DataBits = 8
	}
	if c.Serial.Parity == "" {
		c.Serial.Parity = "none"
	}
	if c.Serial.StopBits == "" {
		c.Serial.StopBits = "1"
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = time.Second
	}

	if c.Reader.ReconnectBackoff == 0 {
		c.Reader.ReconnectBackoff = 5 * time.Second
	}
	if c.Reader.MaxMessageSize == 0 {
		c.Reader.MaxMessageSize = 1 << 20
	}

	if c.Store.ID == "" {
		c.Store.ID = "1001"
	}
	if c.Store.Timezone == "" {
		c.Store.Timezone = "America/New_York"
	}

	if c.API.PartnerHeader == "" {
		c.API.PartnerHeader = "External-Party-ID"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.TokenRefreshSkew == 0 {
		c.API.TokenRefreshSkew = 60 * time.Second
	}

	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 2
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 1024
	}

	if c.Audit.LogDir == "" {
		c.Audit.LogDir = "logs"
	}
	if c.Audit.EventsDir == "" {
		c.Audit.EventsDir = "events"
	}
	if c.Audit.TransactionsDir == "" {
		c.Audit.TransactionsDir = "transactions"
	}
	if c.Audit.SnippetLen == 0 {
		c.Audit.SnippetLen = 200
	}

	if c.Ledger.Path == "" {
		c.Ledger.Path = "ledger"
	}

	if c.Admin.Addr == "" {
		c.Admin.Addr = "127.0.0.1:8089"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = logging.LevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logging.FormatText
	}
	if c.Logging.OutputFile == "" {
		c.Logging.EnableConsole = true
	}

	for i := range c.Channels {
		if c.Channels[i].Terminal == "" {
			c.Channels[i].Terminal = DefaultTerminal(c.Channels[i].Name)
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvClientID); v != "" {
		c.API.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.API.ClientSecret = v
	}
	if v := os.Getenv(EnvTokenURL); v != "" {
		c.API.TokenURL = v
	}
	if v := os.Getenv(EnvStoreID); v != "" {
		c.Store.ID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = logging.LogLevel(v)
	}
}

// Validate checks structural settings. Delivery credentials are
// checked separately by ValidateDelivery since dry runs do not need them.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return poserrors.Config("channel name is required", nil)
		}
		if seen[ch.Name] {
			return poserrors.Config(fmt.Sprintf("duplicate channel %q", ch.Name), nil)
		}
		seen[ch.Name] = true
		if ch.Device == "" {
			return poserrors.Config(fmt.Sprintf("channel %q has no device", ch.Name), nil)
		}
	}

	if c.Dispatch.Workers < 1 {
		return poserrors.Config("dispatch.workers must be at least 1", nil)
	}
	if c.Reader.MaxMessageSize < 1 {
		return poserrors.Config("reader.max_message_size must be positive", nil)
	}
	if _, err := strconv.Atoi(c.Serial.StopBits); err != nil && c.Serial.StopBits != "1.5" {
		return poserrors.Config("invalid serial.stop_bits", err)
	}

	loc, err := time.LoadLocation(c.Store.Timezone)
	if err != nil {
		return poserrors.Config("invalid store.timezone", err)
	}
	c.Store.location = loc

	return nil
}

// ValidateDelivery checks the settings needed to post to the partner API
func (c *Config) ValidateDelivery() error {
	var missing []string
	if c.API.TokenURL == "" {
		missing = append(missing, "api.token_url")
	}
	if c.API.ClientID == "" {
		missing = append(missing, "api.client_id")
	}
	if c.API.ClientSecret == "" {
		missing = append(missing, "api.client_secret")
	}
	if c.API.CashOperationsURL == "" {
		missing = append(missing, "api.cash_operations_url")
	}
	if c.API.TransactionsURL == "" {
		missing = append(missing, "api.transactions_url")
	}
	if c.API.RefundsURL == "" {
		missing = append(missing, "api.refunds_url")
	}
	if len(missing) > 0 {
		return poserrors.Config("missing delivery settings: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// DefaultTerminal derives a terminal id from the last character of a
// channel name, so COM3 becomes terminal 3.
func DefaultTerminal(channel string) string {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "0"
	}
	return channel[len(channel)-1:]
}
