// Command child is the privileged helper process spawned by the parent to
// perform packet capture and ICMP traceroute, operations that need elevated
// privileges the parent itself does not carry. It is invoked as
// `child <base64-command> <channel-socket-path>`: the command travels on
// the command line, base64-encoded, rather than over the channel itself,
// so the child knows what it was asked to do before it ever dials the
// parent. The channel handle is the Unix socket path, passed as-is (it is
// not base64-encoded). It sends Connected as soon as it attaches, then
// dispatches.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/ipmap/core/internal/captbuf"
	"github.com/ipmap/core/internal/capture"
	"github.com/ipmap/core/internal/ipc"
	"github.com/ipmap/core/internal/tracert"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if len(os.Args) < 3 {
		panic("child: usage: child <base64-command> <channel-socket-path>")
	}

	cmd, err := ipc.DecodeCommand(os.Args[1])
	if err != nil {
		panic(fmt.Sprintf("child: decoding command argument: %v", err))
	}

	conn, err := ipc.Dial(os.Args[2])
	if err != nil {
		logger.Error("child: dialing parent", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err = conn.SendResponse(ipc.Response{Kind: ipc.ResponseConnected}); err != nil {
		logger.Error("child: sending connected", "error", err)
		os.Exit(1)
	}

	if err = dispatch(conn, cmd, logger); err != nil {
		logger.Error("child: dispatch failed", "error", err)

		sendErr(conn, err)

		os.Exit(1)
	}
}

func dispatch(conn *ipc.Conn, cmd ipc.Command, logger *slog.Logger) (err error) {
	switch cmd.Kind {
	case ipc.CommandStatus:
		return runStatus(conn)
	case ipc.CommandTraceroute:
		return runTraceroute(conn, cmd)
	case ipc.CommandCapture:
		return runCapture(conn, cmd, logger)
	default:
		return fmt.Errorf("child: %w: kind %d", errUnexpectedType, cmd.Kind)
	}
}

var errUnexpectedType = errors.New("unrecognized command kind")

func runStatus(conn *ipc.Conn) (err error) {
	devices, err := capture.Devices()
	if err != nil {
		return fmt.Errorf("child: listing devices: %w", err)
	}

	return conn.SendResponse(ipc.Response{
		Kind:    ipc.ResponsePcapStatus,
		Devices: ipc.DevicesToWire(devices),
		Version: pcap.Version(),
	})
}

func runTraceroute(conn *ipc.Conn, cmd ipc.Command) (err error) {
	target, err := netip.ParseAddr(cmd.TracerouteTarget)
	if err != nil {
		return fmt.Errorf("child: parsing traceroute target: %w", err)
	}

	onProgress := func(round int) {
		_ = conn.SendResponse(ipc.Response{Kind: ipc.ResponseProgress, Round: round})
	}

	res, err := tracert.Run(context.Background(), target, cmd.TracerouteMaxRounds, onProgress)
	if err != nil {
		return fmt.Errorf("child: running traceroute: %w", err)
	}

	return conn.SendResponse(ipc.Response{
		Kind: ipc.ResponseTraceroute,
		Hops: hopsToWire(tracert.FilterGlobal(res.Hops)),
	})
}

func hopsToWire(hops [][]netip.Addr) (wire [][]string) {
	wire = make([][]string, len(hops))
	for i, hop := range hops {
		addrs := make([]string, len(hop))
		for j, a := range hop {
			addrs[j] = a.String()
		}
		wire[i] = addrs
	}

	return wire
}

// runCapture streams Connections snapshots until the parent kills this
// process. It returns an error only when the device cannot be listed,
// found, or opened, and returns nil once a snapshot fails to send. Between
// reports it suppresses a repeated empty snapshot, so the parent sees exactly
// one "just went idle" transition rather than an unbounded stream of no-ops.
func runCapture(conn *ipc.Conn, cmd ipc.Command, logger *slog.Logger) (err error) {
	devices, err := capture.Devices()
	if err != nil {
		return fmt.Errorf("child: listing devices: %w", err)
	}

	device, ok := findDevice(devices, cmd.CaptureDevice)
	if !ok {
		return fmt.Errorf("child: %w: device %q", errDeviceNotFound, cmd.CaptureDevice)
	}

	session, err := capture.Open(device)
	if err != nil {
		return fmt.Errorf("child: opening %s: %w", device.Name, err)
	}
	defer session.Stop()

	buf := captbuf.NewBuffer(session.Start())
	defer buf.Stop()

	frequency := cmd.CaptureReportFrequency
	if frequency <= 0 {
		frequency = 150 * time.Millisecond
	}

	wasEmpty := false
	for {
		time.Sleep(frequency)

		snapshot := buf.Connections()
		isEmpty := len(snapshot.Updates) == 0 && len(snapshot.Started) == 0 && len(snapshot.Ended) == 0

		if isEmpty && wasEmpty {
			continue
		}
		wasEmpty = isEmpty

		if serr := conn.SendResponse(ipc.Response{
			Kind:   ipc.ResponseCaptureSample,
			Sample: ipc.ConnectionsToWire(snapshot),
		}); serr != nil {
			logger.Error("child: sending capture sample", "error", serr)

			return nil
		}
	}
}

var errDeviceNotFound = errors.New("device not found")

func findDevice(devices []capture.Device, name string) (d capture.Device, ok bool) {
	for _, d = range devices {
		if d.Name == name {
			return d, true
		}
	}

	return capture.Device{}, false
}

// sendErr best-effort reports err to the parent before this process exits;
// the parent has already decided to tear the child down by the time this is
// called, so a failure to deliver it is not itself treated as fatal.
func sendErr(conn *ipc.Conn, err error) {
	kind := ipc.ErrRuntime
	switch {
	case errors.Is(err, errDeviceNotFound):
		kind = ipc.ErrChildNotFound
	case errors.Is(err, errUnexpectedType):
		kind = ipc.ErrUnexpectedType
	case strings.Contains(err.Error(), "permission"):
		kind = ipc.ErrInsufficientPermissions
	}

	_ = conn.SendResponse(ipc.Response{Kind: ipc.ResponsePcapStatus, Err: err.Error(), ErrKind: kind})
}
