package server

import (
	"net/http"
	"time"
)

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	Host      string `env:"HOST" envDefault:"0.0.0.0"`
	Port      uint16 `env:"PORT" envDefault:"59551"`
	JWTSecret string `env:"JWT_SECRET" envDefault:"secret_key"`
}

// Option alters the http.Server built during NewServer
type Option interface {
	apply(*http.Server)
}

type optionFunc func(s *http.Server)

func (f optionFunc) apply(s *http.Server) { f(s) }

// ReadHeaderTimeout sets the header read timeout for http.Server. The full
// read timeout is left unset so long-lived websocket upgrades are unaffected.
func ReadHeaderTimeout(d time.Duration) Option {
	return optionFunc(func(s *http.Server) {
		s.ReadHeaderTimeout = d
	})
}
