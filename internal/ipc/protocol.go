// Package ipc defines the command/response protocol exchanged between the
// parent process and the privileged capture/traceroute child over a
// one-shot local channel, and the framing used to carry it.
package ipc

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// CommandKind identifies which variant of [Command] is populated.
type CommandKind uint8

// Supported commands.
const (
	CommandStatus CommandKind = iota
	CommandTraceroute
	CommandCapture
)

// Command is chosen once, by the parent, before the child is even spawned:
// it crosses to the child base64-encoded on the command line (see
// [EncodeCommand]), not over the channel. IP addresses cross as their
// [netip.Addr.String] form, since msgpack's struct-reflection codec has no
// knowledge of netip.Addr's unexported fields.
type Command struct {
	Kind CommandKind `msgpack:"kind"`

	// Traceroute fields.
	TracerouteTarget    string `msgpack:"tracerouteTarget,omitempty"`
	TracerouteMaxRounds int    `msgpack:"tracerouteMaxRounds,omitempty"`

	// Capture fields.
	CaptureDevice            string        `msgpack:"captureDevice,omitempty"`
	CaptureConnectionTimeout time.Duration `msgpack:"captureConnectionTimeout,omitempty"`
	CaptureReportFrequency   time.Duration `msgpack:"captureReportFrequency,omitempty"`
}

// EncodeCommand serializes cmd for passing as a command-line argument to the
// child: msgpack keeps it identical to the wire form used elsewhere in this
// package, base64 keeps it shell-safe.
func EncodeCommand(cmd Command) (encoded string, err error) {
	b, err := msgpack.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("ipc: marshaling command: %w", err)
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeCommand reverses [EncodeCommand], as the child does with its first
// command-line argument on startup.
func DecodeCommand(encoded string) (cmd Command, err error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return cmd, fmt.Errorf("ipc: decoding command base64: %w", err)
	}

	if err = msgpack.Unmarshal(b, &cmd); err != nil {
		return cmd, fmt.Errorf("ipc: unmarshaling command: %w", err)
	}

	return cmd, nil
}

// NeedsAdmin reports whether running this command requires elevated
// privileges on the current platform. Capture always does; traceroute does
// wherever it needs raw sockets, which on the platforms this module targets
// (Unix capture hosts) is gated by CAP_NET_RAW instead of a spawn-time
// elevation, so only Capture is flagged here.
func (c Command) NeedsAdmin() (needs bool) {
	return c.Kind == CommandCapture
}

// ResponseKind identifies which variant of [Response] is populated.
type ResponseKind uint8

// Supported responses. Connected is sent exactly once, immediately after
// the child connects, before the command is dispatched.
const (
	ResponseConnected ResponseKind = iota
	ResponsePcapStatus
	ResponseTraceroute
	ResponseProgress
	ResponseCaptureSample
)

// Response is one message in the child→parent stream. For Status and
// Traceroute commands exactly one terminal response follows Connected; for
// Capture, CaptureSample responses repeat until the child is killed.
type Response struct {
	Kind ResponseKind `msgpack:"kind"`

	// PcapStatus fields.
	Devices []DeviceInfo `msgpack:"devices,omitempty"`
	Version string       `msgpack:"version,omitempty"`

	// Traceroute fields: each hop is the set of distinct responder
	// addresses seen at that TTL, already filtered to global addresses.
	Hops [][]string `msgpack:"hops,omitempty"`

	// Progress field.
	Round int `msgpack:"round,omitempty"`

	// CaptureSample field.
	Sample WireConnections `msgpack:"sample,omitempty"`

	// Err, when non-empty, signals this response is an error terminal
	// instead of a successful one; ErrKind classifies it.
	Err     string  `msgpack:"err,omitempty"`
	ErrKind ErrKind `msgpack:"errKind,omitempty"`
}

// DeviceInfo mirrors [capture.Device] without importing the capture package
// from ipc, keeping the wire protocol independent of the capture backend's
// internal representation.
type DeviceInfo struct {
	Name        string `msgpack:"name"`
	Description string `msgpack:"description,omitempty"`
	Ready       bool   `msgpack:"ready"`
	Wireless    bool   `msgpack:"wireless"`
}

// WireMovingAverage is the wire form of [captbuf.MovingAverageInfo].
type WireMovingAverage struct {
	Total          uint64 `msgpack:"total"`
	AvgBytesPerSec uint64 `msgpack:"avgBytesPerSec"`
}

// WireConnectionInfo is the wire form of [captbuf.ConnectionInfo].
type WireConnectionInfo struct {
	Up   WireMovingAverage `msgpack:"up"`
	Down WireMovingAverage `msgpack:"down"`
}

// WireConnections is the wire form of [captbuf.Connections], keyed by each
// remote address's string form instead of a [netip.Addr].
type WireConnections struct {
	Updates         map[string]WireConnectionInfo `msgpack:"updates"`
	Started         []string                      `msgpack:"started,omitempty"`
	Ended           []string                      `msgpack:"ended,omitempty"`
	StoppingCapture bool                          `msgpack:"stoppingCapture,omitempty"`
}

// ErrKind enumerates the errors that can cross the IPC boundary.
type ErrKind uint8

// Supported error kinds.
const (
	ErrNone ErrKind = iota
	ErrInsufficientPermissions
	ErrLibLoading
	ErrRuntime
	ErrIPC
	ErrUnexpectedType
	ErrTerminatedUnexpectedly
	ErrChildTimeout
	ErrChildNotFound
	ErrEstablishConnection
)
