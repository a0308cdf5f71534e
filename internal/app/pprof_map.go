package app

import (
	"fmt"
	"net"
	"strings"
	"time"

	"remindbot/internal/observability/pprof"
)

// mapPprofConfig validates and converts the pprof section. It never starts
// the server.
func mapPprofConfig(cfg *Config) (pprof.Config, error) {
	if cfg == nil {
		return pprof.Config{}, nil
	}
	pc := cfg.Pprof

	out := pprof.Config{
		Enabled:       pc.Enabled,
		AllowInsecure: pc.AllowInsecure,
		Token:         strings.TrimSpace(pc.Token),
		Addr:          strings.TrimSpace(pc.Addr),
		Prefix:        strings.TrimSpace(pc.Prefix),

		MutexProfileFraction: pc.MutexProfileFraction,
		BlockProfileRate:     pc.BlockProfileRate,
		MemProfileRate:       pc.MemProfileRate,
	}
	if out.Addr == "" {
		out.Addr = "127.0.0.1:6060"
	}
	if out.Prefix == "" {
		out.Prefix = "/debug/pprof/"
	}

	var err error
	if out.ReadTimeout, err = parseDurationOrDefault("pprof.read_timeout", pc.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	// WriteTimeout keeps its zero default so long profile captures survive.
	if out.WriteTimeout, err = parseDurationField("pprof.write_timeout", pc.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = parseDurationOrDefault("pprof.idle_timeout", pc.IdleTimeout, 120*time.Second); err != nil {
		return out, err
	}

	for _, rate := range []struct {
		key string
		val int
	}{
		{"pprof.mutex_profile_fraction", pc.MutexProfileFraction},
		{"pprof.block_profile_rate", pc.BlockProfileRate},
		{"pprof.mem_profile_rate", pc.MemProfileRate},
	} {
		if rate.val < 0 {
			return out, fmt.Errorf("%s must be >= 0", rate.key)
		}
	}

	if !out.Enabled {
		return out, nil
	}
	if _, _, err := net.SplitHostPort(out.Addr); err != nil {
		return out, fmt.Errorf("pprof.addr: invalid %q (expected host:port): %w", out.Addr, err)
	}
	// A public bind needs explicit opt-in.
	if !out.AllowInsecure && out.Token == "" && !isLoopbackAddr(out.Addr) {
		return out, fmt.Errorf("pprof: binding to non-loopback addr requires token or allow_insecure=true")
	}
	return out, nil
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	switch h = strings.TrimSpace(h); {
	case h == "":
		return false
	case strings.EqualFold(h, "localhost"):
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
