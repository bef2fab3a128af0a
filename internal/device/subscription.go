package device

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/bluez"
)

// Subscriber owns the single signal match for the measurement characteristic.
type Subscriber struct {
	client  Client
	watcher Watcher
	logger  *logrus.Logger
	watch   *bluez.Watch
}

// NewSubscriber creates a subscriber with no match installed.
func NewSubscriber(client Client, watcher Watcher, logger *logrus.Logger) *Subscriber {
	return &Subscriber{client: client, watcher: watcher, logger: logger}
}

// Path returns the path the current match is scoped to, or "".
func (s *Subscriber) Path() bluez.ObjectPath {
	if s.watch == nil {
		return ""
	}
	return s.watch.Path
}

// StartNotify enables notifications. BlueZ accepts it while already notifying.
func (s *Subscriber) StartNotify(path bluez.ObjectPath) error {
	return s.client.Call(path, bluez.InterfaceGattCharacteristic, "StartNotify")
}

// Notifying reads GattCharacteristic1.Notifying.
func (s *Subscriber) Notifying(path bluez.ObjectPath) (bool, error) {
	return s.client.GetBool(path, bluez.InterfaceGattCharacteristic, "Notifying")
}

// Subscribe scopes the match to path. An existing match on another path is
// removed first, so at most one match is ever installed.
func (s *Subscriber) Subscribe(path bluez.ObjectPath) error {
	if s.watch != nil && s.watch.Path == path {
		return nil
	}
	if err := s.Unsubscribe(); err != nil {
		s.logger.WithError(err).Warn("Failed to remove previous signal match")
	}

	w, err := s.watcher.Watch(path)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", path, err)
	}
	s.watch = w
	s.logger.WithField("path", path).Debug("Subscribed to value changes")
	return nil
}

// Unsubscribe removes the current match, if any.
func (s *Subscriber) Unsubscribe() error {
	if s.watch == nil {
		return nil
	}
	w := s.watch
	s.watch = nil
	return s.watcher.Unwatch(w)
}
