// Package commsutil provides COMMS (NATS) connection helpers, the JSON codec and
// the subject names used by the assistant.
package commsutil

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// Connect creates a COMMS connection to the given URL. Reconnects are retried
// for about two minutes before the connection is closed for good.
func Connect(serverURL, name string) (*comms.Conn, error) {
	display := RedactURL(serverURL)
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, display, name))

	nc, err := comms.Connect(serverURL,
		comms.Name(name),
		comms.Timeout(10*time.Second),
		comms.ReconnectWait(2*time.Second),
		comms.MaxReconnects(60),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
			}
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, RedactURL(nc.ConnectedUrl())))
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS at %s: %w", logPrefix, display, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, RedactURL(nc.ConnectedUrl())))
	return nc, nil
}

// RedactURL strips credentials from each URL of a comma-separated server list.
func RedactURL(servers string) string {
	parts := strings.Split(servers, ",")
	for i, p := range parts {
		u, err := url.Parse(strings.TrimSpace(p))
		if err != nil || u.User == nil {
			continue
		}
		u.User = url.User("redacted")
		parts[i] = u.String()
	}
	return strings.Join(parts, ",")
}
