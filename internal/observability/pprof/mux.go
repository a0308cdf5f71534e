package pprof

import (
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
)

func newMux(cfg Config) *http.ServeMux {
	prefix := normalizePrefix(cfg.Prefix)
	base := strings.TrimSuffix(prefix, "/")

	mux := http.NewServeMux()
	// liveness probe stays open
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	routes := map[string]http.HandlerFunc{
		prefix:            indexAt(prefix),
		base + "/cmdline": hpprof.Cmdline,
		base + "/profile": hpprof.Profile,
		base + "/symbol":  hpprof.Symbol,
		base + "/trace":   hpprof.Trace,
	}
	for pattern, h := range routes {
		mux.HandleFunc(pattern, tokenGuard(cfg.Token, h))
	}

	// The bare prefix (no trailing slash) canonicalizes onto prefix. A root
	// prefix has no bare form.
	if base != "" {
		mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, prefix, http.StatusPermanentRedirect)
		})
	}
	return mux
}

// tokenGuard wraps h with a static-token check, accepted either as
// "Authorization: Bearer <token>" or "?token=<token>". An empty configured
// token leaves h open.
func tokenGuard(token string, h http.HandlerFunc) http.HandlerFunc {
	want := strings.TrimSpace(token)
	if want == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if tokenAuthorized(r, want) {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func tokenAuthorized(r *http.Request, want string) bool {
	if got := r.URL.Query().Get("token"); got != "" && got == want {
		return true
	}
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && strings.TrimSpace(bearer) == want
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		return "/debug/pprof/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// indexAt adapts hpprof.Index, which expects paths rooted at
// /debug/pprof/, to a custom prefix.
func indexAt(prefix string) http.HandlerFunc {
	canon := normalizePrefix(prefix)
	return func(w http.ResponseWriter, r *http.Request) {
		clone := r.Clone(r.Context())
		clone.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, canon)
		hpprof.Index(w, clone)
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	switch {
	case host == "":
		// empty host binds all interfaces
		return false
	case strings.EqualFold(host, "localhost"):
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
