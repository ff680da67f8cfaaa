package relay

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// ConnectOptions configures a NATS connection.
type ConnectOptions struct {
	URL      string
	Name     string
	Token    string
	Username string
	Password string
	Timeout  time.Duration
}

// Connect dials NATS.
func Connect(opts ConnectOptions, logger *log.Logger) (*nats.Conn, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.Name == "" {
		opts.Name = "vista"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}

	options := []nats.Option{
		nats.Name(opts.Name),
		nats.Timeout(opts.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", c.ConnectedUrl())
		}),
	}
	if opts.Username != "" || opts.Password != "" {
		options = append(options, nats.UserInfo(opts.Username, opts.Password))
	}
	if opts.Token != "" {
		options = append(options, nats.Token(opts.Token))
	}

	conn, err := nats.Connect(opts.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Debug("Connected to NATS", "url", opts.URL)
	return conn, nil
}
