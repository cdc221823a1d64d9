package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

// ErrConfig marks missing or invalid configuration.
var ErrConfig = errors.New("configuration error")

// DefaultAPIURL is used when SEC_API_URL is unset or blank.
const DefaultAPIURL = "https://api.sec-api.io"

// DefaultUserAgent is used when SEC_USER_AGENT is unset or blank.
const DefaultUserAgent = "sec-comb/1.0"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// SEC API configuration
	APIKey     string `long:"api-key" env:"SEC_API_KEY" description:"Credential for the filings search API (required)"`
	APIURL     string `long:"api-url" env:"SEC_API_URL" default:"https://api.sec-api.io" description:"Filings search API endpoint"`
	AuthScheme string `long:"auth-scheme" env:"AUTH_SCHEME" default:"bearer" description:"Credential header scheme: bearer or x-api-key"`
	UserAgent  string `long:"user-agent" env:"SEC_USER_AGENT" default:"sec-comb/1.0" description:"User agent string for API requests"`

	// Query configuration
	Lookback time.Duration `long:"lookback" env:"LOOKBACK" default:"24h" description:"Only query filings filed within this window"`
	PageSize int           `long:"page-size" env:"PAGE_SIZE" default:"100" description:"Maximum filings requested per query"`
	Timeout  time.Duration `long:"timeout" env:"REQUEST_TIMEOUT" default:"60s" description:"Timeout for a single API request"`

	// Output configuration
	FeedPath  string `long:"feed-path" env:"FEED_PATH" default:"public/feed.xml" description:"Path of the generated RSS feed"`
	DataDir   string `long:"data-dir" env:"DATA_DIR" default:"data" description:"Directory holding the seen-filing history"`
	MaxItems  int    `long:"max-items" env:"MAX_ITEMS" default:"100" description:"Maximum number of items in the feed"`
	RulesFile string `long:"rules" env:"RULES_FILE" description:"YAML file overriding the built-in classification rules"`
	BaseUrl   string `long:"base-url" env:"BASE_URL" description:"Public URL of the published feed (e.g., https://example.github.io/sec-comb/feed.xml)"`
	ServeAddr string `long:"serve" env:"SERVE_ADDR" description:"Serve the feed at this address after the run (e.g., :8080)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses the process arguments and environment.
// A nil Cfg with a nil error means help was printed.
func Load() (*Cfg, error) {
	return Parse(os.Args[1:])
}

func Parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("%w: failed to parse configuration: %w", ErrConfig, err)
	}

	cfg := &Cfg{
		APIKey:     strings.TrimSpace(raw.APIKey),
		APIURL:     strings.TrimRight(cmp.Or(strings.TrimSpace(raw.APIURL), DefaultAPIURL), "/"),
		AuthScheme: cmp.Or(strings.ToLower(strings.TrimSpace(raw.AuthScheme)), AuthBearer),
		UserAgent:  cmp.Or(strings.TrimSpace(raw.UserAgent), DefaultUserAgent),
		Lookback:   raw.Lookback,
		PageSize:   raw.PageSize,
		Timeout:    raw.Timeout,
		FeedPath:   raw.FeedPath,
		DataDir:    raw.DataDir,
		MaxItems:   raw.MaxItems,
		RulesFile:  raw.RulesFile,
		BaseUrl:    raw.BaseUrl,
		ServeAddr:  raw.ServeAddr,
		Timezone:   raw.Timezone,
		Debug:      raw.Debug,
		Version:    GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func (c *Cfg) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: SEC_API_KEY is required", ErrConfig)
	}
	if c.APIURL == "" {
		return fmt.Errorf("%w: SEC_API_URL is required", ErrConfig)
	}

	switch c.AuthScheme {
	case AuthBearer, AuthAPIKey:
	default:
		return fmt.Errorf("%w: unsupported AUTH_SCHEME %q (want %s or %s)", ErrConfig, c.AuthScheme, AuthBearer, AuthAPIKey)
	}

	positiveFields := map[string]int64{
		"max items": int64(c.MaxItems),
		"page size": int64(c.PageSize),
		"lookback":  int64(c.Lookback),
		"timeout":   int64(c.Timeout),
	}

	for fieldName, fieldValue := range positiveFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrConfig, fieldName)
		}
	}

	if c.FeedPath == "" || c.DataDir == "" {
		return fmt.Errorf("%w: feed path and data dir are required", ErrConfig)
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
