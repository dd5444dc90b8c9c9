package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the session
// server and its supporting tools.
type Config struct {
	// Hostname or IP address on which the player gateway will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Maximum number of concurrent player connections the gateway will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Full path to file to which logs will be written. Blank will write to stdout.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`
	// How often the game loop advances its timers.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	Gateway struct {
		// Port on which players connect. Overridden by the port= switch.
		Port int `mapstructure:"port"`
	} `mapstructure:"gateway"`

	Backend struct {
		// Websocket endpoint of the orchestration backend.
		URL string `mapstructure:"url"`
		// Identifiers this process presents when it connects.
		ProcessID string `mapstructure:"process_id"`
		HostID    string `mapstructure:"host_id"`
		FleetID   string `mapstructure:"fleet_id"`
		AuthToken string `mapstructure:"auth_token"`
		// Upper bound on how long a single backend call may wait for its response.
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		// Interval between health reports sent to the backend.
		HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
		// Log files the backend should collect when the process ends.
		LogPaths []string `mapstructure:"log_paths"`
	} `mapstructure:"backend"`

	Results struct {
		// Base URL of the results API; match outcomes go to <api_url>/assignmatchresults.
		APIURL string `mapstructure:"api_url"`
		// Sent verbatim in the Authorization header. Overridden by the password= switch.
		ServerPassword string `mapstructure:"server_password"`
		// Time limit for delivering a match result.
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"results"`

	Match struct {
		PollInterval   time.Duration `mapstructure:"poll_interval"`
		StartThreshold int           `mapstructure:"start_threshold"`
		IdlePollLimit  int           `mapstructure:"idle_poll_limit"`
		BackfillDelay  time.Duration `mapstructure:"backfill_delay"`
		EndMatchDelay  time.Duration `mapstructure:"end_match_delay"`
	} `mapstructure:"match"`

	Database struct {
		// One of sqlite or postgres. Leaving it blank disables the results ledger.
		Engine string `mapstructure:"engine"`
		// Path to the database file if using sqlite.
		Filename string `mapstructure:"filename"`
		// Hostname of the Postgres database instance.
		Host string `mapstructure:"host"`
		// Port on db_host on which the Postgres instance is accepting connections.
		Port int `mapstructure:"port"`
		// Name of the database in Postgres.
		Name string `mapstructure:"name"`
		// Username and password of a user with full RW privileges to ${db_name}.
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		// Set to verify-full if the Postgres instance supports SSL.
		SSLMode string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "SHOWDOWN"

func setDefaults(v *viper.Viper) {
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("max_connections", 16)
	v.SetDefault("log_level", "info")
	v.SetDefault("tick_interval", 50*time.Millisecond)
	v.SetDefault("gateway.port", 7777)
	v.SetDefault("backend.process_id", uuid.NewString())
	v.SetDefault("backend.request_timeout", 10*time.Second)
	v.SetDefault("backend.health_check_interval", 60*time.Second)
	v.SetDefault("backend.log_paths", []string{"aLogFile.txt"})
	v.SetDefault("results.timeout", 30*time.Second)
	v.SetDefault("match.poll_interval", 5*time.Second)
	v.SetDefault("match.start_threshold", 4)
	v.SetDefault("match.idle_poll_limit", 10)
	v.SetDefault("match.backfill_delay", 15*time.Second)
	v.SetDefault("match.end_match_delay", 30*time.Second)
	v.SetDefault("database.filename", "showdown.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("debugging.pprof_port", 4000)
}

// LoadConfig reads config.yaml from configPath, applies SHOWDOWN_* environment
// overrides and returns the result.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("no config file in path %s", configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, results.api_url can be set using: SHOWDOWN_RESULTS_API_URL
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config object: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the session cannot run with. Every match timing
// and threshold must be positive.
func (c *Config) Validate() error {
	durations := []struct {
		key   string
		value time.Duration
	}{
		{"match.poll_interval", c.Match.PollInterval},
		{"match.backfill_delay", c.Match.BackfillDelay},
		{"match.end_match_delay", c.Match.EndMatchDelay},
		{"backend.request_timeout", c.Backend.RequestTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %v", d.key, d.value)
		}
	}

	if c.Match.StartThreshold <= 0 {
		return fmt.Errorf("invalid config: match.start_threshold must be positive, got %d", c.Match.StartThreshold)
	}
	if c.Match.IdlePollLimit <= 0 {
		return fmt.Errorf("invalid config: match.idle_poll_limit must be positive, got %d", c.Match.IdlePollLimit)
	}
	return nil
}

// ApplySwitches overrides file and environment settings with any port= or
// password= switches passed on the command line.
func (c *Config) ApplySwitches(s Switches) {
	if s.Port != 0 {
		c.Gateway.Port = s.Port
	}
	if s.PasswordSet {
		c.Results.ServerPassword = s.Password
	}
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

const assignMatchResultsPath = "/assignmatchresults"

// ResultsURL is the endpoint match outcomes are posted to.
func (c *Config) ResultsURL() string {
	return strings.TrimSuffix(c.Results.APIURL, "/") + assignMatchResultsPath
}

// GatewayAddress returns the address the player gateway binds to.
func (c *Config) GatewayAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Gateway.Port)
}
