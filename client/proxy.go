package client

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/quicpulse/quicpulse/status"
)

// ProxyTable routes requests to proxies by target scheme.
//
// Each --proxy flag contributes a "PROTO:URL" mapping (e.g.
// "http:http://10.0.0.1:3128"); repeating a protocol builds a rotation list
// for that protocol.  --socks applies to every scheme that has no explicit
// mapping.
//
// Thread-safety: rotation indices are guarded by a mutex so concurrent
// driver requests each receive the next proxy without races.
type ProxyTable struct {
	byScheme map[string][]*url.URL
	fallback *url.URL
	index    map[string]int
	mu       sync.Mutex
}

// NewProxyTable parses the repeated --proxy flags and the optional --socks
// URL.  An empty table means the environment decides.
func NewProxyTable(entries []string, socks string) (*ProxyTable, error) {
	t := &ProxyTable{
		byScheme: make(map[string][]*url.URL),
		index:    make(map[string]int),
	}
	for _, e := range entries {
		proto, raw, ok := strings.Cut(e, ":")
		if !ok || raw == "" {
			return nil, status.Errorf(status.KindArgument, "invalid --proxy %q: want PROTO:URL", e)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, status.Errorf(status.KindArgument, "invalid proxy URL %q", raw)
		}
		proto = strings.ToLower(proto)
		t.byScheme[proto] = append(t.byScheme[proto], u)
	}
	if socks != "" {
		if !strings.Contains(socks, "://") {
			socks = "socks5://" + socks
		}
		u, err := url.Parse(socks)
		if err != nil || u.Host == "" {
			return nil, status.Errorf(status.KindArgument, "invalid --socks URL %q", socks)
		}
		t.fallback = u
	}
	return t, nil
}

// Empty reports whether the table has no explicit mapping at all.
func (t *ProxyTable) Empty() bool {
	return len(t.byScheme) == 0 && t.fallback == nil
}

// ProxyFor selects the proxy for req, rotating round-robin through the
// list registered for the request's scheme.  Returns (nil, nil) for direct
// connections, matching http.Transport's contract.
func (t *ProxyTable) ProxyFor(req *http.Request) (*url.URL, error) {
	scheme := strings.ToLower(req.URL.Scheme)

	t.mu.Lock()
	defer t.mu.Unlock()

	if list := t.byScheme[scheme]; len(list) > 0 {
		u := list[t.index[scheme]%len(list)]
		t.index[scheme]++
		return u, nil
	}
	if t.fallback != nil {
		return t.fallback, nil
	}
	return nil, nil
}
