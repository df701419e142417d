package config

import (
	"crypto/tls"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// rawConfig mirrors the flag/env/file keys before validation.
type rawConfig struct {
	Port            string `mapstructure:"port"`
	BaseDir         string `mapstructure:"baseDir"`
	ShowDir         bool   `mapstructure:"showDir"`
	AutoIndex       bool   `mapstructure:"autoIndex"`
	CORS            bool   `mapstructure:"cors"`
	TLS             bool   `mapstructure:"tls"`
	TLSCert         string `mapstructure:"tlsCert"`
	TLSKey          string `mapstructure:"tlsKey"`
	NoDotfiles      bool   `mapstructure:"noDotfiles"`
	Proxy           string `mapstructure:"proxy"`
	WSProxy         string `mapstructure:"wsproxy"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	LogPath         string `mapstructure:"logpath"`
	UserAgent       string `mapstructure:"userAgent"`
	Host            string `mapstructure:"host"`
	ProxyTimeout    string `mapstructure:"proxyTimeout"`
	ShutdownTimeout string `mapstructure:"shutdownTimeout"`
	LogLevel        string `mapstructure:"logLevel"`
}

// ListingMode selects what happens when a request resolves to a directory.
type ListingMode int

const (
	// ListingDisabled answers directory requests with 403.
	ListingDisabled ListingMode = iota
	// ListingAutoIndex serves the directory's index.html.
	ListingAutoIndex
	// ListingFull renders an HTML listing of the directory.
	ListingFull
)

// TLSConfig holds the pre-made certificate material.
type TLSConfig struct {
	Enabled     bool
	CertFile    string
	KeyFile     string
	Certificate tls.Certificate
}

// BasicAuth is the configured credential pair.
type BasicAuth struct {
	Username string
	Password string
}

// ServerConfig is built once at startup and never mutated afterwards.
type ServerConfig struct {
	Port          string
	BaseDir       string // absolute
	Listing       ListingMode
	CORS          bool
	TLS           TLSConfig
	HideDotfiles  bool
	ProxyTarget   *url.URL
	WSProxyTarget *url.URL
	Auth          BasicAuth
	AllowedHost   string
	UserAgent     string
	LogPath       string

	ProxyTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        zerolog.Level
}
