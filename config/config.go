package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//EnvPrefix prefix of every environment override
const EnvPrefix = "IOTPRINTER_"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Printer  PrinterConfig  `yaml:"printer"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Button   ButtonConfig   `yaml:"button"`
	Loop     LoopConfig     `yaml:"loop"`
	Periodic PeriodicConfig `yaml:"periodic"`
	Daily    DailyConfig    `yaml:"daily"`
	Weather  WeatherConfig  `yaml:"weather"`
	GitHub   GitHubConfig   `yaml:"github"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Logging  LoggingConfig  `yaml:"logging"`
	Graphics GraphicsConfig `yaml:"graphics"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

type ServerConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	Debug          bool          `yaml:"debug"`
}

type PrinterConfig struct {
	Port      string        `yaml:"port"`
	Baud      int           `yaml:"baud"`
	Timeout   time.Duration `yaml:"timeout"`
	HeatDots  byte          `yaml:"heat_dots"`
	HeatTime  byte          `yaml:"heat_time"`
	HeatGap   byte          `yaml:"heat_interval"`
	MaxWidth  int           `yaml:"max_width"`
	Dummy     bool          `yaml:"dummy"`
	DummyWait time.Duration `yaml:"dummy_delay"`
}

type GPIOConfig struct {
	Button string `yaml:"button"`
	LED    string `yaml:"led"`
	Pull   string `yaml:"pull"`
}

type ButtonConfig struct {
	Debounce  time.Duration `yaml:"debounce"`
	Hold      time.Duration `yaml:"hold"`
	ActiveLow bool          `yaml:"active_low"`
}

type LoopConfig struct {
	Tick time.Duration `yaml:"tick"`
}

type PeriodicConfig struct {
	Enabled bool          `yaml:"enabled"`
	Period  time.Duration `yaml:"period"`
	Cursor  string        `yaml:"initial_cursor"`
}

type DailyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hour     int    `yaml:"hour"`
	Minute   int    `yaml:"minute"`
	Location string `yaml:"location"`
}

type WeatherConfig struct {
	URL       string        `yaml:"url"`
	Latitude  float64       `yaml:"latitude"`
	Longitude float64       `yaml:"longitude"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
}

type GitHubConfig struct {
	URL           string        `yaml:"url"`
	Username      string        `yaml:"username"`
	Token         string        `yaml:"token"`
	SkipOrgEvents bool          `yaml:"skip_org_events"`
	Timeout       time.Duration `yaml:"timeout"`
}

type SensorConfig struct {
	Type    string `yaml:"type"` //none, ds18b20 or max31855
	ID      string `yaml:"id"`   //1-wire id, auto picks the first
	SPIPort string `yaml:"spi_port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream"` //JetStream stream kept for a day, empty publishes core NATS only
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type GraphicsConfig struct {
	Hello   string `yaml:"hello"`
	Face    string `yaml:"face"`
	Goodbye string `yaml:"goodbye"`
}

type ShutdownConfig struct {
	Commands [][]string `yaml:"commands"`
}

//Defaults the configuration used when no file is present
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8888,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 8 << 20,
		},
		Printer: PrinterConfig{
			Port:      "/dev/serial0",
			Baud:      19200,
			Timeout:   5 * time.Second,
			HeatDots:  11,
			HeatTime:  120,
			HeatGap:   40,
			MaxWidth:  384,
			DummyWait: 500 * time.Millisecond,
		},
		GPIO: GPIOConfig{
			Button: "GPIO23",
			LED:    "GPIO18",
			Pull:   "up",
		},
		Button: ButtonConfig{
			Debounce:  10 * time.Millisecond,
			Hold:      2 * time.Second,
			ActiveLow: true,
		},
		Loop: LoopConfig{
			Tick: 10 * time.Millisecond,
		},
		Periodic: PeriodicConfig{
			Period: 30 * time.Second,
			Cursor: "1",
		},
		Daily: DailyConfig{
			Enabled:  true,
			Hour:     6,
			Minute:   30,
			Location: "Local",
		},
		Weather: WeatherConfig{
			URL:     "https://api.open-meteo.com/v1/forecast",
			Timeout: 10 * time.Second,
			Retries: 3,
		},
		GitHub: GitHubConfig{
			URL:           "https://api.github.com",
			SkipOrgEvents: true,
			Timeout:       10 * time.Second,
		},
		Sensor: SensorConfig{
			Type: "none",
			ID:   "auto",
		},
		Database: DatabaseConfig{
			Path: "/var/lib/iot-printer/printerdata.db",
		},
		NATS: NATSConfig{
			Port:    4222,
			Subject: "iot-printer.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Graphics: GraphicsConfig{
			Hello:   "gfx/hello.png",
			Face:    "gfx/face01.png",
			Goodbye: "gfx/goodbye.png",
		},
		Shutdown: ShutdownConfig{
			Commands: [][]string{{"sync"}, {"shutdown", "-h", "now"}},
		},
	}
}

//Load read the yaml file over the defaults, a missing file is not an error
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

//ApplyEnv overlay IOTPRINTER_* variables, lookup is os.LookupEnv outside tests
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("SERVER_ADDRESS", &c.Server.Address)
	str("PRINTER_PORT", &c.Printer.Port)
	str("GPIO_BUTTON", &c.GPIO.Button)
	str("GPIO_LED", &c.GPIO.LED)
	str("GITHUB_USERNAME", &c.GitHub.Username)
	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("SENSOR_TYPE", &c.Sensor.Type)
	str("SENSOR_ID", &c.Sensor.ID)
	str("DB_PATH", &c.Database.Path)
	str("NATS_HOST", &c.NATS.Host)
	str("NATS_STREAM", &c.NATS.Stream)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	for _, err := range []error{
		num("SERVER_PORT", &c.Server.Port),
		num("PRINTER_BAUD", &c.Printer.Baud),
		num("NATS_PORT", &c.NATS.Port),
		flag("PRINTER_DUMMY", &c.Printer.Dummy),
		flag("PERIODIC_ENABLED", &c.Periodic.Enabled),
		flag("DAILY_ENABLED", &c.Daily.Enabled),
		flag("SERVER_DEBUG", &c.Server.Debug),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

//TimeLocation the location the daily action is scheduled in
func (c *Config) TimeLocation() (*time.Location, error) {
	switch strings.ToLower(c.Daily.Location) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	}
	return time.LoadLocation(c.Daily.Location)
}

//ListenAddr host:port for the ingestion server
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must be non-negative")
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("max upload bytes must be at least 1")
	}

	if !c.Printer.Dummy {
		if c.Printer.Port == "" {
			return fmt.Errorf("printer port is required")
		}
		if c.Printer.Baud < 1 {
			return fmt.Errorf("printer baud must be positive, got %d", c.Printer.Baud)
		}
	}

	if c.Printer.MaxWidth < 8 {
		return fmt.Errorf("printer max width must be at least 8 dots")
	}

	if c.Button.Debounce <= 0 {
		return fmt.Errorf("button debounce must be positive")
	}

	if c.Button.Hold <= c.Button.Debounce {
		return fmt.Errorf("button hold (%v) must be longer than debounce (%v)", c.Button.Hold, c.Button.Debounce)
	}

	if c.Loop.Tick <= 0 {
		return fmt.Errorf("loop tick must be positive")
	}

	if c.Periodic.Enabled && c.Periodic.Period <= 0 {
		return fmt.Errorf("periodic period must be positive")
	}

	if c.Daily.Hour < 0 || c.Daily.Hour > 23 || c.Daily.Minute < 0 || c.Daily.Minute > 59 {
		return fmt.Errorf("daily time %02d:%02d is not a valid time of day", c.Daily.Hour, c.Daily.Minute)
	}

	if _, err := c.TimeLocation(); err != nil {
		return fmt.Errorf("daily location: %w", err)
	}

	if c.Periodic.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path is required when the periodic action is enabled")
	}

	switch c.Sensor.Type {
	case "", "none", "ds18b20", "max31855":
	default:
		return fmt.Errorf("invalid sensor type: %s (valid: none, ds18b20, max31855)", c.Sensor.Type)
	}

	if c.NATS.Host != "" && (c.NATS.Port < 1 || c.NATS.Port > 65535) {
		return fmt.Errorf("nats port must be between 1 and 65535, got %d", c.NATS.Port)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
