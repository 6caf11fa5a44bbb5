package collector

import (
	"time"

	"github.com/coreos/go-systemd/daemon"
)

// Notifier reports service state to the init system.
type Notifier interface {
	Notify(state string) error
	WatchdogInterval() time.Duration
}

// systemdNotifier is a no-op outside of systemd (NOTIFY_SOCKET unset).
type systemdNotifier struct{}

func (systemdNotifier) Notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

func (systemdNotifier) WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
