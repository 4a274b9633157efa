package realtime

import (
	"net"
	"net/http"
	"sync"

	"resistance-server/services"

	log "github.com/sirupsen/logrus"
)

// peerSlots caps concurrent sockets per peer IP. A nil *peerSlots admits
// everything.
type peerSlots struct {
	max  int
	mu   sync.Mutex
	open map[string]int
	log  *log.Entry
}

func newPeerSlots(limit int) *peerSlots {
	if limit <= 0 {
		return nil
	}
	return &peerSlots{
		max:  limit,
		open: make(map[string]int),
		log:  log.WithFields(log.Fields{"component": "realtime.ws", "max_per_ip": limit}),
	}
}

// take reserves a socket slot for ip. The returned release is safe to call
// more than once.
func (p *peerSlots) take(ip string) (release func(), ok bool) {
	if p == nil {
		return func() {}, true
	}

	p.mu.Lock()
	n := p.open[ip]
	if n >= p.max {
		p.mu.Unlock()
		p.log.WithFields(log.Fields{"peer": ip, "open": n}).Warn("peer at socket limit")
		return nil, false
	}
	p.open[ip] = n + 1
	p.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { p.give(ip) }) }, true
}

func (p *peerSlots) give(ip string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open[ip] <= 1 {
		delete(p.open, ip)
		return
	}
	p.open[ip]--
}

// inUse reports the open sockets for ip.
func (p *peerSlots) inUse(ip string) int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open[ip]
}

// sessionToken reads the session cookie, falling back to a bearer header.
func sessionToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return services.BearerToken(r.Header.Get("Authorization"))
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
