package geoipdb

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"math/big"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ipmap/core/internal/ipaddr"
)

// gzipMagic is the two-byte gzip header, used to detect a gzip-wrapped CSV
// without relying on the file extension.
var gzipMagic = [2]byte{0x1f, 0x8b}

const sniffLen = 50

// Kind identifies the detected format of a database source file.
type Kind int

// Supported kinds.
const (
	KindCSV Kind = iota
	KindMMDB
)

// Detection is the outcome of [Detect]: enough information to pick the
// right ingest path without re-reading the file from the start.
type Detection struct {
	Kind   Kind
	Family ipaddr.Family
	IsNum  bool
	// Reader yields the file's CSV bytes (already gunzipped, if it was
	// gzip-wrapped), positioned at the start. Unused when Kind is KindMMDB.
	Reader io.Reader
}

// Detect classifies the file at path as CSV or MMDB, and, for CSV, as
// numeric or textual and as IPv4 or IPv6. A path ending in ".mmdb" is
// always treated as MMDB; any other extension is sniffed.
func Detect(path string) (d Detection, err error) {
	if strings.EqualFold(filepath.Ext(path), ".mmdb") {
		return Detection{Kind: KindMMDB}, nil
	}

	f, err := os.Open(path) //nolint:gosec // Path is operator-supplied, not attacker-controlled.
	if err != nil {
		return d, fmt.Errorf("geoipdb: opening %q: %w", path, err)
	}

	return detectCSV(f)
}

// detectCSV sniffs f (already positioned at offset 0) to determine whether
// it is gzip-wrapped, and whether its address column is numeric/textual and
// v4/v6.
func detectCSV(f *os.File) (d Detection, err error) {
	var head [2]byte
	if _, err = io.ReadFull(f, head[:]); err != nil {
		return d, fmt.Errorf("geoipdb: reading magic: %w", err)
	}

	isGzip := head == gzipMagic

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return d, fmt.Errorf("geoipdb: seeking: %w", err)
	}

	var sniffSrc io.Reader = f
	if isGzip {
		gz, gzErr := gzip.NewReader(f)
		if gzErr != nil {
			return d, fmt.Errorf("geoipdb: opening gzip stream: %w", gzErr)
		}

		sniffSrc = gz
	}

	sniff := make([]byte, sniffLen)

	n, _ := io.ReadFull(sniffSrc, sniff)
	sniff = sniff[:n]

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return d, fmt.Errorf("geoipdb: seeking: %w", err)
	}

	kind, isNum, err := classifyAddrField(sniff)
	if err != nil {
		return d, err
	}

	var reader io.Reader = f
	if isGzip {
		gz, gzErr := gzip.NewReader(f)
		if gzErr != nil {
			return d, fmt.Errorf("geoipdb: opening gzip stream: %w", gzErr)
		}

		reader = gz
	}

	return Detection{
		Kind:   KindCSV,
		Family: kind,
		IsNum:  isNum,
		Reader: bufio.NewReader(reader),
	}, nil
}

// classifyAddrField inspects the first comma-separated field of sniff and
// decides whether the file is numeric or textual, and IPv4 or IPv6.
//
// Heuristic: most IPv6 addresses do not fit in a u32, so for numeric input,
// "fits in u32" implies v4 and "does not" implies v6. For textual input,
// netip.ParseAddr's own family tag decides.
func classifyAddrField(sniff []byte) (f ipaddr.Family, isNum bool, err error) {
	idx := bytes.IndexByte(sniff, ',')
	if idx < 0 {
		return 0, false, fmt.Errorf("%w: no comma-separated field found", ErrNoRecords)
	}

	field := string(sniff[:idx])

	if addr, perr := netip.ParseAddr(field); perr == nil {
		return ipaddr.FamilyOf(addr), false, nil
	}

	_, u32Err := strconv.ParseUint(field, 10, 32)
	isU128 := false

	if n, ok := new(big.Int).SetString(field, 10); ok {
		isU128 = n.Sign() >= 0 && n.BitLen() <= 128
	}

	if u32Err != nil && !isU128 {
		return 0, false, fmt.Errorf("%w: %q is neither an address nor an integer", ErrInvalidFormat, field)
	}

	if u32Err == nil {
		return ipaddr.V4, true, nil
	}

	return ipaddr.V6, true, nil
}
