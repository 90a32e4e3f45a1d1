// Package notify implements the systemd-style readiness channel (§6):
// READY=1, STOPPING=1, and ERRNO=<n> datagrams sent to the socket named by
// $NOTIFY_SOCKET, matching original_source/main/main.c's three
// sd_notifyf calls. It is grounded on caddyserver-caddy/caddy/notify/
// notifier.go and notify_systemd.go, trimmed from that package's pluggable
// multi-notifier chain (caddy supports an arbitrary set of concerned
// parties) down to the single channel this spec actually defines, and
// reimplemented without coreos/go-systemd — not present in the retrieved
// dependency pack — since the wire protocol is three lines over a
// SOCK_DGRAM UNIX socket, simple enough to send directly.
package notify

import (
	"fmt"
	"net"
	"os"

	"github.com/grout-project/groutd/internal/grlog"
	"go.uber.org/zap"
)

var log = grlog.Named("notify")

func socketPath() string {
	return os.Getenv("NOTIFY_SOCKET")
}

func send(msg string) {
	path := socketPath()
	if path == "" {
		return
	}

	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		log.Debug("dial notify socket", zap.Error(err))
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(msg)); err != nil {
		log.Debug("write notify socket", zap.Error(err))
	}
}

// Ready announces READY=1 plus a human-readable status line, matching
// main()'s `sd_notifyf(0, "READY=1\nSTATUS=grout version %s started", ...)`.
func Ready(status string) {
	send(fmt.Sprintf("READY=1\nSTATUS=%s", status))
}

// Stopping announces STOPPING=1 plus a status line, matching main()'s
// `sd_notifyf(0, "STOPPING=1\nSTATUS=shutting down...")`.
func Stopping(status string) {
	send(fmt.Sprintf("STOPPING=1\nSTATUS=%s", status))
}

// Errno announces a fatal startup/shutdown errno, matching main()'s
// `sd_notifyf(0, "ERRNO=%i", err)` on the failure path.
func Errno(n int) {
	send(fmt.Sprintf("ERRNO=%d", n))
}
