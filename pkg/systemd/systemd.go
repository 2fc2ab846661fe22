// Package systemd reports service state to systemd through the
// sd_notify protocol. Every call is a no-op outside a notify-enabled unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready reports that startup finished. It returns false when the process
// is not supervised by systemd.
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

func Reloading() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(s string) (bool, error) { return daemon.SdNotify(false, "STATUS="+s) }

// WatchdogInterval returns the unit's WatchdogSec, or 0 when disabled.
func WatchdogInterval() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) }

// RunWatchdog pings the watchdog at half its interval while healthy
// reports true. It returns at once when no watchdog is configured.
func RunWatchdog(ctx context.Context, healthy func() bool) error {
	iv, err := WatchdogInterval()
	if err != nil || iv <= 0 {
		return err
	}
	t := time.NewTicker(iv / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy == nil || healthy() {
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					return err
				}
			}
		}
	}
}
