// Package grconfig parses the daemon's CLI surface (§6 of the spec) and
// carries the resulting settings in a Config value, the Go analogue of the
// original's `struct gr_config` (main/gr_config.h).
package grconfig

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// DefaultSockPath is used when neither -s/--socket nor GROUT_SOCK_PATH is
// set.
const DefaultSockPath = "/run/groutd.sock"

// SockPathEnvVar is the environment variable that overrides the default
// control socket path, per §6.
const SockPathEnvVar = "GROUT_SOCK_PATH"

// Version is the daemon's reported version string, set at build time via
// -ldflags the way caddy's own Version() is composed from module info.
var Version = "dev"

// Config mirrors `struct gr_config`: the immutable settings derived from
// CLI flags and the environment at startup.
type Config struct {
	APISockPath string
	Verbosity   int
	TestMode    bool
	PollMode    bool
	TracePkts   bool

	// MaxPayloadBytes bounds a single request/response frame's payload
	// (§4.A); requests larger than this close the connection with
	// EMSGSIZE.
	MaxPayloadBytes uint32
}

// ErrHelpRequested is returned by Parse when -h/--help was given; the
// caller should print usage and exit 0.
var ErrHelpRequested = fmt.Errorf("help requested")

// ErrVersionRequested is returned by Parse when -V/--version was given.
var ErrVersionRequested = fmt.Errorf("version requested")

// Parse builds a Config from CLI args (excluding argv[0]) and the process
// environment, following the original's alphabetical-flag convention
// ("Please keep options/flags in alphabetical order.", main/main.c).
func Parse(args []string) (*Config, *pflag.FlagSet, error) {
	fs := pflag.NewFlagSet("groutd", pflag.ContinueOnError)
	fs.Usage = func() {}

	help := fs.BoolP("help", "h", false, "Display this help message and exit.")
	poll := fs.BoolP("poll-mode", "p", false, "Disable automatic micro-sleep.")
	sock := fs.StringP("socket", "s", "", "Path to the control plane API socket.")
	test := fs.BoolP("test-mode", "t", false, "Run in test mode (no hugepages).")
	version := fs.BoolP("version", "V", false, "Print version and exit.")
	verbose := fs.CountP("verbose", "v", "Increase verbosity.")
	trace := fs.BoolP("trace-packets", "x", false, "Print all ingress/egress packets.")
	maxPayload := fs.Uint32("max-payload", 64<<10, "Maximum accepted request/response payload size, in bytes.")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if *help {
		return nil, fs, ErrHelpRequested
	}
	if *version {
		return nil, fs, ErrVersionRequested
	}
	if fs.NArg() > 0 {
		return nil, fs, fmt.Errorf("invalid arguments: %v", fs.Args())
	}

	path := *sock
	if path == "" {
		path = os.Getenv(SockPathEnvVar)
	}
	if path == "" {
		path = DefaultSockPath
	}

	return &Config{
		APISockPath:     path,
		Verbosity:       *verbose,
		TestMode:        *test,
		PollMode:        *poll,
		TracePkts:       *trace,
		MaxPayloadBytes: *maxPayload,
	}, fs, nil
}
