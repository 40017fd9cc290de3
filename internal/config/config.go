package config

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/screa/rangecrack/internal/crypto"
	"github.com/screa/rangecrack/pkg/protocol"
)

// EnvPrefix prefixes environment overrides, e.g. RANGECRACK_TARGET.
const EnvPrefix = "RANGECRACK"

// Transports
const (
	TransportTCP  = "tcp"
	TransportNATS = "nats"
)

// Errors
var (
	ErrNoTargetSpecified = errors.New("must specify --target")
	ErrInvalidWidth      = errors.New("candidate width must be positive")
	ErrInvalidWorkers    = errors.New("workers must not be negative")
	ErrInvalidPort       = errors.New("port must be between 1 and 65535")
	ErrUnknownTransport  = errors.New("transport must be tcp or nats")
)

// Config holds the application configuration
type Config struct {
	ConfigFile string

	// Job server
	Server      string
	Port        int
	Transport   string
	NATSURL     string
	NATSSubject string

	// Search
	Target       string
	Width        int
	Workers      int
	Algorithm    string
	ExclusiveEnd bool

	// Job cycle
	IOTimeout       time.Duration
	ConnectAttempts uint
	RetryDelay      time.Duration
	MaxJobs         int

	// Wire tokens
	FieldSep   string
	RangeSep   string
	RequestTag string
	SuccessTag string
	FailureTag string

	Verbose     bool
	LogFile     string
	LogInterval int // Logging interval in seconds
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		Server:          "127.0.0.1",
		Port:            9900,
		Transport:       TransportTCP,
		NATSURL:         "nats://127.0.0.1:4222",
		NATSSubject:     "rangecrack.jobs",
		Width:           10,
		Workers:         runtime.NumCPU(),
		Algorithm:       string(crypto.MD5),
		ConnectAttempts: 5,
		RetryDelay:      time.Second,
		FieldSep:        protocol.DefaultFieldSep,
		RangeSep:        protocol.DefaultRangeSep,
		RequestTag:      protocol.DefaultRequestTag,
		SuccessTag:      protocol.DefaultSuccessTag,
		FailureTag:      protocol.DefaultFailureTag,
		LogInterval:     5, // Default 5 seconds
	}
}

// RegisterFlags binds command line flags to c, using c's current values as defaults.
// Flag names double as viper keys.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ConfigFile, "config", "c", c.ConfigFile, "Config file (yaml, json, toml, ...)")

	fs.StringVarP(&c.Server, "server", "S", c.Server, "Job server address")
	fs.IntVarP(&c.Port, "port", "P", c.Port, "Job server port")
	fs.StringVar(&c.Transport, "transport", c.Transport, "Transport to reach the job server (tcp, nats)")
	fs.StringVar(&c.NATSURL, "nats-url", c.NATSURL, "NATS server URL (nats transport)")
	fs.StringVar(&c.NATSSubject, "nats-subject", c.NATSSubject, "Subject the job server listens on (nats transport)")

	fs.StringVarP(&c.Target, "target", "t", c.Target, "Target digest (hex, case-insensitive)")
	fs.IntVarP(&c.Width, "width", "d", c.Width, "Candidate width in decimal digits")
	fs.IntVarP(&c.Workers, "workers", "w", c.Workers, "Number of ranges to request per job")
	fs.StringVarP(&c.Algorithm, "algorithm", "a", c.Algorithm, "Digest algorithm ("+strings.Join(crypto.Algorithms(), ", ")+")")
	fs.BoolVar(&c.ExclusiveEnd, "exclusive-end", c.ExclusiveEnd, "Treat range end as exclusive")

	fs.DurationVar(&c.IOTimeout, "io-timeout", c.IOTimeout, "Per-message network timeout (0 for none)")
	fs.UintVar(&c.ConnectAttempts, "connect-attempts", c.ConnectAttempts, "Connection attempts per job (0 to retry forever)")
	fs.DurationVar(&c.RetryDelay, "retry-delay", c.RetryDelay, "Delay before retrying a failed job")
	fs.IntVar(&c.MaxJobs, "max-jobs", c.MaxJobs, "Stop after this many jobs (0 for no limit)")

	fs.StringVar(&c.FieldSep, "field-sep", c.FieldSep, "Wire field separator")
	fs.StringVar(&c.RangeSep, "range-sep", c.RangeSep, "Wire range separator")
	fs.StringVar(&c.RequestTag, "request-tag", c.RequestTag, "Work request tag")
	fs.StringVar(&c.SuccessTag, "success-tag", c.SuccessTag, "Success report tag")
	fs.StringVar(&c.FailureTag, "failure-tag", c.FailureTag, "Failure report tag")

	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "Verbose output")
	fs.StringVarP(&c.LogFile, "log-file", "l", c.LogFile, "Log file (default: stdout)")
	fs.IntVarP(&c.LogInterval, "log-interval", "i", c.LogInterval, "Progress logging interval in seconds")
}

// NewViper returns a viper instance resolving keys from flags, RANGECRACK_*
// environment variables and the config file, in that order.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

// Load fills c from v, reading the config file first if one is set.
func (c *Config) Load(v *viper.Viper) error {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		c.ConfigFile = file
	}

	c.Server = v.GetString("server")
	c.Port = v.GetInt("port")
	c.Transport = strings.ToLower(v.GetString("transport"))
	c.NATSURL = v.GetString("nats-url")
	c.NATSSubject = v.GetString("nats-subject")

	c.Target = v.GetString("target")
	c.Width = v.GetInt("width")
	c.Workers = v.GetInt("workers")
	c.Algorithm = v.GetString("algorithm")
	c.ExclusiveEnd = v.GetBool("exclusive-end")

	c.IOTimeout = v.GetDuration("io-timeout")
	c.ConnectAttempts = v.GetUint("connect-attempts")
	c.RetryDelay = v.GetDuration("retry-delay")
	c.MaxJobs = v.GetInt("max-jobs")

	c.FieldSep = v.GetString("field-sep")
	c.RangeSep = v.GetString("range-sep")
	c.RequestTag = v.GetString("request-tag")
	c.SuccessTag = v.GetString("success-tag")
	c.FailureTag = v.GetString("failure-tag")

	c.Verbose = v.GetBool("verbose")
	c.LogFile = v.GetString("log-file")
	c.LogInterval = v.GetInt("log-interval")
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Target == "" {
		return ErrNoTargetSpecified
	}
	if c.Width <= 0 {
		return ErrInvalidWidth
	}
	if c.Workers < 0 {
		return ErrInvalidWorkers
	}
	algo, err := crypto.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return err
	}
	if _, err := crypto.ParseTarget(c.Target, algo); err != nil {
		return err
	}
	switch c.Transport {
	case TransportTCP:
		if c.Port < 1 || c.Port > 65535 {
			return ErrInvalidPort
		}
	case TransportNATS:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport)
	}
	return c.Codec().Validate()
}

// Address returns the job server's host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

// Endpoint describes where jobs come from, for logging.
func (c *Config) Endpoint() string {
	if c.Transport == TransportNATS {
		return c.NATSURL + " subject " + c.NATSSubject
	}
	return c.Address()
}

// GetTargetDescription returns a human-readable description of the target
func (c *Config) GetTargetDescription() string {
	return fmt.Sprintf("%s %s, width %d", c.Algorithm, strings.ToLower(c.Target), c.Width)
}

// Codec returns the wire codec for the configured tokens.
func (c *Config) Codec() protocol.Codec {
	return protocol.Codec{
		FieldSep:   c.FieldSep,
		RangeSep:   c.RangeSep,
		RequestTag: c.RequestTag,
		SuccessTag: c.SuccessTag,
		FailureTag: c.FailureTag,
	}
}
