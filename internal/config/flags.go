package config

import (
	"flag"
	"io"
)

// CLIFlags holds command-line overrides. Nil pointers mean the flag was
// not set; CLI values win over both YAML and ENV.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	DataDir    *string
}

// ParseFlags parses command-line arguments into CLIFlags. Each flag has a
// long form and a single-letter shorthand.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "path to YAML config file")
	configShort := fs.String("c", "", "shorthand for --config")
	port := fs.String("port", "", "HTTP listen port")
	portShort := fs.String("p", "", "shorthand for --port")
	logLevel := fs.String("log-level", "", "log level (debug|info|warn|error)")
	dsn := fs.String("dsn", "", "postgres connection string")
	natsURL := fs.String("nats-url", "", "NATS server URL")
	dataDir := fs.String("data-dir", "", "fs storage root directory")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	pick := func(long, short *string) *string {
		if *long != "" {
			return long
		}
		if short != nil && *short != "" {
			return short
		}
		return nil
	}
	flags.ConfigPath = pick(configPath, configShort)
	flags.Port = pick(port, portShort)
	flags.LogLevel = pick(logLevel, nil)
	flags.DSN = pick(dsn, nil)
	flags.NatsURL = pick(natsURL, nil)
	flags.DataDir = pick(dataDir, nil)
	return flags, nil
}

// LoadWithCLI loads config with the full hierarchy: defaults < YAML < ENV
// < CLI. It returns the resolved YAML path alongside the config.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		return nil, "", err
	}

	applyCLI(cfg, flags)

	if err := validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, yamlPath, nil
}

// applyCLI overlays set flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
	if flags.DataDir != nil {
		cfg.Storage.FSRoot = *flags.DataDir
	}
}
