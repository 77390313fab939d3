package basp

import (
	"log/slog"
	"runtime"
	"time"
)

// Option configures a Node at construction time, following the
// teacher's functional-options pattern (hostConfig/Option in
// options.go) verbatim in style.
type Option func(*config)

type config struct {
	application string // logical application identifier exchanged at handshake
	protocolVersion uint32

	resolveTimeout  time.Duration
	heartbeatPeriod time.Duration
	heartbeatMisses int // set by WithHeartbeat; no missed-heartbeat detection reads it

	workerCount   int // deserialization worker pool size
	mailboxSize   int64
	bufferCacheHint int // payload buffer cache initial bucket hint

	acceptRatePerSecond float64 // accept-path admission control, see ratelimit.go
	acceptBurst         int

	logLevel slog.Level
}

func defaultConfig() config {
	return config{
		application:         "basp",
		protocolVersion:     1,
		resolveTimeout:      5 * time.Second,
		heartbeatPeriod:     3 * time.Second,
		heartbeatMisses:     3,
		workerCount:         defaultWorkerCount(),
		mailboxSize:         4096,
		bufferCacheHint:     256,
		acceptRatePerSecond: 200,
		acceptBurst:         50,
		logLevel:            slog.LevelInfo,
	}
}

// defaultWorkerCount mirrors the BASP worker-pool sizing formula: a
// quarter of available hardware concurrency, capped at 3, plus one,
// never fewer than one. WithWorkerCount overrides it.
func defaultWorkerCount() int {
	n := min(3, runtime.GOMAXPROCS(0)/4) + 1
	if n < 1 {
		n = 1
	}
	return n
}

// WithApplication sets the logical application identifier exchanged
// during handshake; connections from peers naming a different value are
// rejected.
func WithApplication(name string) Option {
	return func(c *config) { c.application = name }
}

// WithProtocolVersion overrides the protocol version advertised at
// handshake. Cross-version negotiation is out of scope: a mismatch is
// always fatal.
func WithProtocolVersion(v uint32) Option {
	return func(c *config) { c.protocolVersion = v }
}

func WithResolveTimeout(d time.Duration) Option {
	return func(c *config) { c.resolveTimeout = d }
}

func WithHeartbeat(period time.Duration, missesBeforeDown int) Option {
	return func(c *config) {
		c.heartbeatPeriod = period
		c.heartbeatMisses = missesBeforeDown
	}
}

func WithWorkerCount(n int) Option {
	return func(c *config) { c.workerCount = n }
}

func WithMailboxSize(n int64) Option {
	return func(c *config) { c.mailboxSize = n }
}

func WithAcceptRateLimit(perSecond float64, burst int) Option {
	return func(c *config) {
		c.acceptRatePerSecond = perSecond
		c.acceptBurst = burst
	}
}

func WithLogLevel(l slog.Level) Option {
	return func(c *config) { c.logLevel = l }
}
