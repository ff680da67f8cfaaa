package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats-server/v2/server"
)

// Embedded is an in-process NATS server for single-host relays.
type Embedded struct {
	ns     *server.Server
	logger *log.Logger
}

// StartEmbedded starts a NATS server on host:port and waits until it
// accepts connections. Port -1 picks a free port.
func StartEmbedded(host string, port int, logger *log.Logger) (*Embedded, error) {
	opts := &server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server failed to start within 5 seconds")
	}
	logger.Info("Embedded NATS server started", "url", ns.ClientURL())
	return &Embedded{ns: ns, logger: logger}, nil
}

// ClientURL is the URL clients connect to.
func (e *Embedded) ClientURL() string { return e.ns.ClientURL() }

// Shutdown stops the server and waits for it to exit.
func (e *Embedded) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.logger.Info("Shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
