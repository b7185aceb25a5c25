package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// FailureLimiter counts failed authentication attempts per client IP inside
// a sliding window.
type FailureLimiter struct {
	failures map[string][]time.Time
	mutex    sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewFailureLimiter blocks an IP once it has limit failures within window.
// A limit of zero or less disables blocking.
func NewFailureLimiter(limit int, window time.Duration) *FailureLimiter {
	fl := &FailureLimiter{
		failures: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	if window > 0 {
		go fl.cleanup()
	}
	return fl
}

// Blocked reports whether ip has used up its failure budget.
func (fl *FailureLimiter) Blocked(ip string) bool {
	if fl == nil || fl.limit <= 0 {
		return false
	}
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	return len(fl.prune(ip)) >= fl.limit
}

// Fail records a failed attempt from ip.
func (fl *FailureLimiter) Fail(ip string) {
	if fl == nil || fl.limit <= 0 {
		return
	}
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	fl.failures[ip] = append(fl.prune(ip), fl.now())
}

// Reset forgets the failures of ip, e.g. after a successful login.
func (fl *FailureLimiter) Reset(ip string) {
	if fl == nil {
		return
	}
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	delete(fl.failures, ip)
}

// prune drops expired failures. Callers hold the mutex.
func (fl *FailureLimiter) prune(ip string) []time.Time {
	cutoff := fl.now().Add(-fl.window)
	attempts := fl.failures[ip]
	valid := attempts[:0]
	for _, at := range attempts {
		if at.After(cutoff) {
			valid = append(valid, at)
		}
	}
	if len(valid) == 0 {
		delete(fl.failures, ip)
		return nil
	}
	fl.failures[ip] = valid
	return valid
}

func (fl *FailureLimiter) cleanup() {
	ticker := time.NewTicker(fl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fl.mutex.Lock()
			for ip := range fl.failures {
				fl.prune(ip)
			}
			fl.mutex.Unlock()
		case <-fl.stopCh:
			return
		}
	}
}

// Stop ends the cleanup goroutine.
func (fl *FailureLimiter) Stop() {
	fl.stopOnce.Do(func() { close(fl.stopCh) })
}

// ClientIP returns the address failures are counted against. Forwarding
// headers are honoured only when the peer is inside trusted. The rightmost
// X-Forwarded-For hop outside trusted is the client.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := remoteHost(r.RemoteAddr)
	if !isTrusted(peer, trusted) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			ip := addr.Unmap().String()
			if !isTrusted(ip, trusted) {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.Unmap().String()
		}
	}
	return peer
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
