package basp

import "golang.org/x/time/rate"

// acceptLimiter guards the multiplexer's accept path against connection
// storms, grounded in kephasnet's CheckRateLimit use of
// golang.org/x/time/rate. This is strictly admission control: once a
// connection is accepted and handshaked, no further rate limiting is
// applied to its traffic, per the flow-control Non-goal (TCP/OS
// backpressure and mailbox blocking are the only throttles a live
// connection experiences).
type acceptLimiter struct {
	limiter *rate.Limiter
}

func newAcceptLimiter(perSecond float64, burst int) *acceptLimiter {
	return &acceptLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether a newly observed inbound connection attempt may
// proceed to handshake, consuming one token if so.
func (l *acceptLimiter) Allow() bool {
	return l.limiter.Allow()
}
