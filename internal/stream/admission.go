package stream

import "sync"

// rejection names the cap that turned a stream away. The empty value means
// the stream was admitted. Values double as metric reason labels.
type rejection string

const (
	admitted       rejection = ""
	rejectedPerIP  rejection = "per_ip_limit"
	rejectedGlobal rejection = "global_limit"
)

// admission counts open snapshot streams per client address and overall.
type admission struct {
	mu     sync.Mutex
	byIP   map[string]int
	total  int
	perIP  int
	global int
}

func newAdmission(c Config) *admission {
	return &admission{
		byIP:   make(map[string]int),
		perIP:  c.MaxConcurrentPerIP,
		global: c.MaxStreams,
	}
}

// admit registers a stream for ip unless a cap is already reached.
func (a *admission) admit(ip string) rejection {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.total >= a.global:
		return rejectedGlobal
	case a.byIP[ip] >= a.perIP:
		return rejectedPerIP
	}
	a.byIP[ip]++
	a.total++
	return admitted
}

// leave releases a stream admitted for ip.
func (a *admission) leave(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total--
	if a.byIP[ip]--; a.byIP[ip] <= 0 {
		delete(a.byIP, ip)
	}
}

// open returns the streams held by ip and in total.
func (a *admission) open(ip string) (perIP, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byIP[ip], a.total
}
