// Package watchdog speaks the systemd notification protocol. Outside a
// systemd unit (no NOTIFY_SOCKET) every call is a no-op.
package watchdog

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger *logrus.Logger
	send   func(state string) (bool, error)
}

func New(logger *logrus.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		send: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

func (n *Notifier) notify(state string) error {
	sent, err := n.send(state)
	if err != nil {
		return err
	}
	if sent {
		n.logger.WithField("state", state).Debug("sd_notify sent")
	}
	return nil
}

// Ready signals that startup finished.
func (n *Notifier) Ready(status string) error {
	return n.notify(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Watchdog pings the service watchdog.
func (n *Notifier) Watchdog() error {
	return n.notify(daemon.SdNotifyWatchdog)
}

// Status updates the free-form status line shown by systemctl.
func (n *Notifier) Status(status string) error {
	return n.notify("STATUS=" + status)
}

// Stopping signals the start of shutdown.
func (n *Notifier) Stopping() error {
	return n.notify(daemon.SdNotifyStopping)
}
