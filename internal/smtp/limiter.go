package smtp

import (
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"postdrop/backend/internal/monitoring"
)

// ConnectionLimiter bounds both the number of concurrent SMTP sessions and
// the rate at which new ones are admitted.
type ConnectionLimiter struct {
	maxConns int
	limiter  *rate.Limiter

	mu      sync.Mutex
	current int
}

// NewConnectionLimiter creates a limiter admitting at most maxConns
// concurrent connections and maxPerSecond new connections per second.
func NewConnectionLimiter(maxConns, maxPerSecond int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxConns: maxConns,
		limiter:  rate.NewLimiter(rate.Limit(maxPerSecond), maxPerSecond),
	}
}

// Acquire reports whether a new connection may proceed. Non-blocking: a
// refused connection is closed by the caller, not queued.
func (l *ConnectionLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.maxConns {
		return false
	}
	if !l.limiter.Allow() {
		return false
	}
	l.current++
	return true
}

// Release returns a connection slot.
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current > 0 {
		l.current--
	}
}

// Current returns the number of active connections.
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// LimitListener wraps a net.Listener so that connections beyond the
// limiter's budget are closed immediately after accept.
func LimitListener(inner net.Listener, limiter *ConnectionLimiter, metrics *monitoring.Metrics, log *zap.Logger) net.Listener {
	return &limitedListener{Listener: inner, limiter: limiter, metrics: metrics, log: log}
}

type limitedListener struct {
	net.Listener
	limiter *ConnectionLimiter
	metrics *monitoring.Metrics
	log     *zap.Logger
}

func (l *limitedListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if !l.limiter.Acquire() {
			l.metrics.ConnectionsRefused.Inc()
			l.log.Warn("smtp connection refused by limiter",
				zap.String("remote", conn.RemoteAddr().String()),
			)
			conn.Close()
			continue
		}
		return &limitedConn{Conn: conn, limiter: l.limiter}, nil
	}
}

type limitedConn struct {
	net.Conn
	limiter *ConnectionLimiter

	once sync.Once
}

func (c *limitedConn) Close() error {
	c.once.Do(c.limiter.Release)
	return c.Conn.Close()
}
