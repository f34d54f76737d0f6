package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config carries the knobs every backend understands. Zero values fall back
// to the defaults below.
type Config struct {
	Client    Client
	Timeout   time.Duration
	IdleAfter time.Duration
	Headless  bool
	UserAgent string
}

const (
	DefaultTimeout   = 30 * time.Second
	DefaultIdleAfter = 2 * time.Second
)

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) idleAfter() time.Duration {
	if c.IdleAfter <= 0 {
		return DefaultIdleAfter
	}
	return c.IdleAfter
}
