package app

import (
	"fmt"
	"net"
	"strings"
	"time"

	"remindbot/internal/api"
)

// mapAPIConfig validates and converts the JSON api section. It never binds
// the listener. A non-loopback bind without a token is allowed here; the
// service logs loudly about it instead.
func mapAPIConfig(cfg *Config) (api.Config, error) {
	var out api.Config
	if cfg == nil || cfg.API == nil {
		return out, nil
	}
	ac := cfg.API

	out.Enabled = ac.Enabled
	out.Token = strings.TrimSpace(ac.Token)
	out.Addr = strings.TrimSpace(ac.Addr)
	if out.Addr == "" {
		out.Addr = "127.0.0.1:8484"
	}
	for _, o := range ac.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out.CORSOrigins = append(out.CORSOrigins, o)
		}
	}

	// durations
	var err error
	out.ReadTimeout, err = parseDurationOrDefault("api.read_timeout", ac.ReadTimeout, 5*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	out.WriteTimeout, err = parseDurationOrDefault("api.write_timeout", ac.WriteTimeout, 10*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	out.IdleTimeout, err = parseDurationOrDefault("api.idle_timeout", ac.IdleTimeout, 120*time.Second)
	if err != nil {
		return api.Config{}, err
	}

	if out.Enabled {
		if _, _, err := net.SplitHostPort(out.Addr); err != nil {
			return api.Config{}, fmt.Errorf("api.addr: invalid %q (expected host:port): %w", out.Addr, err)
		}
	}
	return out, nil
}
