// Package options parses the command-line flags shared by the host and
// viewer binaries, grounded on
// original_source/core/CppFrameworkLib/ProgramOptions.cpp, with
// boost::program_options replaced by github.com/spf13/pflag.
package options

import (
	"errors"
	"strings"

	"github.com/spf13/pflag"
)

// Defaults mirror ProgramOptions::parse's default_value calls.
const (
	DefaultProtocol         = "udpproxy://127.0.0.1:41988"
	DefaultPeerTimeout      = 30
	DefaultKeyFrameDistance = 3
	DefaultTargetBitrate    = 10000
)

// Options holds the parsed command-line configuration for a transport
// endpoint.
type Options struct {
	// ProtocolScheme and ProtocolAddress are split from the --protocol
	// flag at the "://" separator, e.g. "udpproxy" and "127.0.0.1:41988".
	ProtocolScheme  string
	ProtocolAddress string

	SessionID         uint64
	PeerTimeout       int32
	KeyFrameDistance  int32
	TargetBitrateKbps int32
	DisableInput      bool
	ShowConsole       bool
}

// Parse parses args (excluding the program name) into Options, applying
// the same clamps as the original: peerTimeout >= 0, keyFrameDistance >= 1,
// targetBitrateKbps in [100, 50000].
func Parse(args []string) (*Options, error) {
	fs := pflag.NewFlagSet("directremote", pflag.ContinueOnError)

	protocol := fs.String("protocol", DefaultProtocol,
		"A protocol string of the form scheme://address, e.g. udpproxy://host:port.")
	disableInput := fs.Bool("disable-input", false, "If set, the host ignores remote input.")
	showConsole := fs.Bool("show-console", false, "If set, the application opens a console to print log output.")
	sessionID := fs.Uint64("session-id", 0, "The session id used to pair with a specific peer.")
	peerTimeout := fs.Int32("peer-timeout", DefaultPeerTimeout,
		"Timeout in seconds after which waiting for a remote peer is abandoned.")
	keyFrameDistance := fs.Int32("key-frame-distance", DefaultKeyFrameDistance,
		"Number of non-keyframes to insert between two keyframes.")
	targetBitrateKbps := fs.Int32("target-bitrate-kbps", DefaultTargetBitrate,
		"Desired video encoding bitrate in kilobits per second.")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	scheme, address, err := splitProtocol(*protocol)
	if err != nil {
		return nil, err
	}

	o := &Options{
		ProtocolScheme:    scheme,
		ProtocolAddress:   address,
		DisableInput:      *disableInput,
		ShowConsole:       *showConsole,
		SessionID:         *sessionID,
		PeerTimeout:       clampMin(*peerTimeout, 0),
		KeyFrameDistance:  clampMin(*keyFrameDistance, 1),
		TargetBitrateKbps: clamp(*targetBitrateKbps, 100, 50000),
	}
	return o, nil
}

func splitProtocol(s string) (scheme, address string, err error) {
	const sep = "://"
	idx := strings.Index(s, sep)
	if idx < 0 {
		return "", "", errors.New("options: --protocol must be of the form scheme://address")
	}
	return s[:idx], s[idx+len(sep):], nil
}

func clampMin(v, min int32) int32 {
	if v < min {
		return min
	}
	return v
}

func clamp(v, min, max int32) int32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
