package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrTLSIncomplete is returned when TLS is requested without a usable key pair.
var ErrTLSIncomplete = errors.New("tls enabled but certificate and key are not both configured")

// ConfigFileFlag names the optional flag pointing at a YAML/TOML/JSON file.
const ConfigFileFlag = "config"

// RegisterFlags defines every configuration flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("port", "3000", "port to listen on (env PORT when the flag is absent)")
	fs.String("baseDir", ".", "directory to serve files from")
	fs.Bool("showDir", false, "render directory listings")
	fs.Bool("autoIndex", true, "serve index.html for directory requests")
	fs.Bool("cors", false, "answer CORS preflights and add CORS headers")
	fs.Bool("tls", false, "serve over TLS (requires --tlsCert and --tlsKey)")
	fs.String("tlsCert", "", "path to the TLS certificate")
	fs.String("tlsKey", "", "path to the TLS private key")
	fs.Bool("noDotfiles", false, "hide dotfiles from listings and lookups")
	fs.String("proxy", "", "upstream URL for requests not satisfied locally")
	fs.String("wsproxy", "", "upstream ws:// or wss:// URL for WebSocket upgrades")
	fs.String("username", "", "basic auth username")
	fs.String("password", "", "basic auth password (plain text or bcrypt hash)")
	fs.String("logpath", "", "file to append access log entries to")
	fs.String("userAgent", "", "User-Agent sent to the upstream")
	fs.String("host", "", "only accept requests for this Host")
	fs.String("proxyTimeout", "0", "upstream request timeout, 0 disables (supports d/w units)")
	fs.String("shutdownTimeout", "15s", "grace period for in-flight requests on shutdown")
	fs.String("logLevel", "info", "diagnostic log level")
	fs.String(ConfigFileFlag, "", "optional config file (yaml, toml or json)")
}

// setDefaults applies default values using Viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("baseDir", ".")
	v.SetDefault("autoIndex", true)
	v.SetDefault("proxyTimeout", "0")
	v.SetDefault("shutdownTimeout", "15s")
	v.SetDefault("logLevel", "info")
}

// Load resolves flags, environment, an optional config file and defaults
// into a validated ServerConfig. Flags beat env, env beats the file.
func Load(fs *pflag.FlagSet, log zerolog.Logger) (*ServerConfig, error) {
	v := viper.New()
	setDefaults(v)

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := v.BindEnv("port", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT env: %w", err)
	}

	if path := v.GetString(ConfigFileFlag); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read/parse config file %s: %w", path, err)
		}
		log.Info().Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	return build(raw, log)
}

// build validates raw and turns it into a ServerConfig. All problems are
// reported together.
func build(raw rawConfig, log zerolog.Logger) (*ServerConfig, error) {
	var errs []error
	cfg := &ServerConfig{
		Port:         raw.Port,
		Listing:      listingModeFor(raw.ShowDir, raw.AutoIndex),
		CORS:         raw.CORS,
		HideDotfiles: raw.NoDotfiles,
		Auth:         BasicAuth{Username: raw.Username, Password: raw.Password},
		AllowedHost:  normalizeHost(raw.Host),
		UserAgent:    raw.UserAgent,
		LogPath:      raw.LogPath,
	}

	if cfg.Port == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}

	baseDir, err := filepath.Abs(raw.BaseDir)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid baseDir %q: %w", raw.BaseDir, err))
	} else if fi, statErr := os.Stat(baseDir); statErr != nil {
		errs = append(errs, fmt.Errorf("cannot access baseDir %s: %w", baseDir, statErr))
	} else if !fi.IsDir() {
		errs = append(errs, fmt.Errorf("baseDir %s is not a directory", baseDir))
	}
	cfg.BaseDir = baseDir

	if raw.TLS {
		cfg.TLS = TLSConfig{Enabled: true, CertFile: raw.TLSCert, KeyFile: raw.TLSKey}
		if raw.TLSCert == "" || raw.TLSKey == "" {
			errs = append(errs, ErrTLSIncomplete)
		} else if cert, loadErr := tls.LoadX509KeyPair(raw.TLSCert, raw.TLSKey); loadErr != nil {
			errs = append(errs, fmt.Errorf("failed to load TLS key pair from %s and %s: %w", raw.TLSCert, raw.TLSKey, loadErr))
		} else {
			cfg.TLS.Certificate = cert
		}
	}

	if raw.Proxy != "" {
		u, parseErr := parseUpstream(raw.Proxy, "http", "https")
		if parseErr != nil {
			errs = append(errs, fmt.Errorf("invalid proxy: %w", parseErr))
		}
		cfg.ProxyTarget = u
	}
	if raw.WSProxy != "" {
		u, parseErr := parseUpstream(raw.WSProxy, "ws", "wss")
		if parseErr != nil {
			errs = append(errs, fmt.Errorf("invalid wsproxy: %w", parseErr))
		}
		cfg.WSProxyTarget = u
	}

	if (raw.Username == "") != (raw.Password == "") {
		log.Warn().Msg("basic auth needs both --username and --password; authentication is disabled")
	}

	if cfg.ProxyTimeout, err = StrToDuration(raw.ProxyTimeout); err != nil {
		errs = append(errs, fmt.Errorf("invalid proxyTimeout: %w", err))
	}
	if cfg.ShutdownTimeout, err = StrToDuration(raw.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("invalid shutdownTimeout: %w", err))
	}
	if cfg.LogLevel, err = zerolog.ParseLevel(raw.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid logLevel: %w", err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// parseUpstream parses an absolute upstream URL restricted to the given schemes.
func parseUpstream(raw string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%q must use one of the schemes %v", raw, schemes)
}
