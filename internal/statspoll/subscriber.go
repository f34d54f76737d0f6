package statspoll

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
)

// Subscriber receives stats pushed over the backend's /ws/stats socket.
type Subscriber struct {
	wsURL  string
	dialer *websocket.Dialer
	header http.Header
	logger logging.Logger
}

// NewSubscriber derives the socket URL from the HTTP base URL of the backend.
func NewSubscriber(baseURL string, logger logging.Logger) (*Subscriber, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws/stats"

	if logger == nil {
		logger = logging.Nop()
	}
	return &Subscriber{
		wsURL:  u.String(),
		dialer: websocket.DefaultDialer,
		header: http.Header{},
		logger: logger.With(logging.Field{Key: "component", Value: "stats-ws"}),
	}, nil
}

// URL returns the socket address.
func (s *Subscriber) URL() string { return s.wsURL }

// Run reads pushed stats until ctx is done or the connection drops.
func (s *Subscriber) Run(ctx context.Context, onStats func(model.Stats)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, s.header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	// Unblock ReadJSON on teardown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Debug("subscribed to stats", logging.Field{Key: "url", Value: s.wsURL})
	for {
		var st model.Stats
		if err := conn.ReadJSON(&st); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read stats: %w", err)
		}
		onStats(st)
	}
}
