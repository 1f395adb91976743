package systemd

import (
	"errors"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/LeoCommon/fieldnode/pkg/log"
	"go.uber.org/zap"
)

var ErrNoNotifySocket = errors.New("systemd-notify socket was not available")

// EntertainWatchdog sends a notification to the systemd watchdog
func EntertainWatchdog() error {
	log.Debug("Notifying systemd watchdog")
	return Notify(NotifyWatchdog)
}

func Ready() error {
	return Notify(NotifyReady)
}

func Stopping() error {
	return Notify(NotifyStopping)
}

// Status shows text in systemctl status
func Status(text string) error {
	return Notify(NotifyStatusPrefix + text)
}

// WatchdogInterval returns the watchdog timeout systemd expects us to honor.
// The second return value is false if no watchdog is configured for this process.
func WatchdogInterval() (time.Duration, bool) {
	usec := os.Getenv(WatchdogUsecEnvVar)
	if usec == "" {
		return 0, false
	}

	us, err := strconv.ParseUint(usec, 10, 64)
	if err != nil || us == 0 {
		log.Warn("ignoring invalid watchdog timeout", zap.String("value", usec))
		return 0, false
	}

	// The watchdog may be meant for another process
	if pid := os.Getenv(WatchdogPidEnvVar); pid != "" && pid != strconv.Itoa(os.Getpid()) {
		return 0, false
	}

	return time.Duration(us) * time.Microsecond, true
}

// Notify sends the provided msg to the systemd socket
func Notify(msg string) error {
	name := os.Getenv(NotifySocketEnvVar)
	if name == "" {
		return ErrNoNotifySocket
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Net: "unixgram", Name: name})
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write([]byte(msg))
	return err
}
