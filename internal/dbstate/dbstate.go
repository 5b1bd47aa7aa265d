// Package dbstate tracks the set of loaded geolocation archives per address
// family and the one currently selected for lookups in each, publishing the
// selection atomically so that lookups never block behind a load/unload.
package dbstate

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/ipmap/core/internal/archive"
	"github.com/ipmap/core/internal/geocoord"
	"github.com/ipmap/core/internal/geoipdb"
	"github.com/ipmap/core/internal/ipaddr"
)

// Kind identifies one of the three tracked collections.
type Kind uint8

// Supported kinds.
const (
	KindV4 Kind = iota
	KindV6
	KindCombined
)

// String implements [fmt.Stringer] for Kind.
func (k Kind) String() (s string) {
	switch k {
	case KindV4:
		return "v4"
	case KindV6:
		return "v6"
	case KindCombined:
		return "combined"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ErrInUse is returned by [Manager.Remove] when the removed archive has live
// borrowers, so its backing file was not deleted. The archive has still
// been dropped from its collection.
const ErrInUse errors.Error = "dbstate: archive is in use, not deleting"

// FamilyInfo is a snapshot of one collection's loaded sources and current
// selection.
type FamilyInfo struct {
	Loaded   []archive.Source
	Selected *archive.Source
}

// Info is a full snapshot of a [Manager], emitted after every mutation.
type Info struct {
	V4       FamilyInfo
	V6       FamilyInfo
	Combined FamilyInfo
}

// entry pairs a loaded resource with a borrow count approximating the
// original Arc's strong-reference count: [Manager.Lookup] holds a borrow for
// the duration of a query, and [Manager.Remove] only deletes the backing
// file once no borrow is outstanding.
type entry struct {
	resource *archive.FileResource
	borrows  atomic.Int32
}

func (e *entry) borrow() {
	e.borrows.Add(1)
}

func (e *entry) release() {
	e.borrows.Add(-1)
}

// family is one of the three collections a [Manager] tracks.
type family struct {
	// mu guards loaded; selected is read lock-free via the atomic pointer so
	// that lookups never wait on a concurrent insert/remove/select.
	mu       sync.Mutex
	loaded   map[uint64]*entry
	selected atomic.Pointer[entry]
}

func newFamily() (f *family) {
	return &family{loaded: map[uint64]*entry{}}
}

func (f *family) info() (fi FamilyInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fi.Loaded = make([]archive.Source, 0, len(f.loaded))
	for _, e := range f.loaded {
		fi.Loaded = append(fi.Loaded, e.resource.Source())
	}

	if sel := f.selected.Load(); sel != nil {
		src := sel.resource.Source()
		fi.Selected = &src
	}

	return fi
}

// Manager is the process-wide set of loaded/selected geolocation archives.
// The zero value is not usable; use [NewManager].
type Manager struct {
	logger *slog.Logger

	v4       *family
	v6       *family
	combined *family
}

// Config configures a [Manager].
type Config struct {
	// Logger is used to report skipped duplicates and in-use removals.
	// Logger must not be nil.
	Logger *slog.Logger
}

// NewManager returns an empty Manager.
func NewManager(c *Config) (m *Manager) {
	return &Manager{
		logger:   c.Logger,
		v4:       newFamily(),
		v6:       newFamily(),
		combined: newFamily(),
	}
}

func (m *Manager) familyByKind(k Kind) (f *family) {
	switch k {
	case KindV4:
		return m.v4
	case KindV6:
		return m.v6
	default:
		return m.combined
	}
}

// Insert adds r to the collection identified by kind, making it the
// collection's new selection. If an archive with the same checksum is
// already loaded, the insert is skipped and logged; r is left for the caller
// to close.
func (m *Manager) Insert(kind Kind, r *archive.FileResource) (info Info, inserted bool) {
	f := m.familyByKind(kind)
	checksum := r.Checksum()

	f.mu.Lock()
	if _, ok := f.loaded[checksum]; ok {
		f.mu.Unlock()

		m.logger.Info(
			"skipping duplicate archive",
			"kind", kind,
			"checksum", checksum,
			"source", r.Source(),
		)

		return m.Info(), false
	}

	e := &entry{resource: r}
	f.loaded[checksum] = e
	f.mu.Unlock()

	f.selected.Store(e)

	return m.Info(), true
}

// Remove drops the archive with the given checksum from kind's collection.
// If it was selected, the next available entry (map iteration order, which
// Go does not guarantee stable) becomes the new selection, or none if the
// collection is now empty. The backing file is deleted unless a [Lookup] is
// concurrently borrowing it, in which case the entry is still dropped from
// the collection, the file is kept, a warning is logged, and [ErrInUse] is
// returned.
func (m *Manager) Remove(kind Kind, checksum uint64) (info Info, err error) {
	f := m.familyByKind(kind)

	f.mu.Lock()
	e, ok := f.loaded[checksum]
	if !ok {
		f.mu.Unlock()

		return m.Info(), nil
	}

	delete(f.loaded, checksum)

	wasSelected := f.selected.Load() == e
	if wasSelected {
		f.selected.Store(nextEntry(f.loaded))
	}
	f.mu.Unlock()

	if e.borrows.Load() > 0 {
		m.logger.Warn(
			"not deleting in-use archive",
			"kind", kind,
			"checksum", checksum,
		)

		return m.Info(), fmt.Errorf("%w: checksum %d", ErrInUse, checksum)
	}

	if derr := e.resource.Delete(); derr != nil {
		return m.Info(), fmt.Errorf("dbstate: deleting archive: %w", derr)
	}

	return m.Info(), nil
}

func nextEntry(loaded map[uint64]*entry) (e *entry) {
	for _, e = range loaded {
		return e
	}

	return nil
}

// SetSelected moves kind's collection's selection to the archive with the
// given checksum, if loaded.
func (m *Manager) SetSelected(kind Kind, checksum uint64) (info Info, ok bool) {
	f := m.familyByKind(kind)

	f.mu.Lock()
	e, ok := f.loaded[checksum]
	f.mu.Unlock()

	if !ok {
		return m.Info(), false
	}

	f.selected.Store(e)

	return m.Info(), true
}

// Info returns a snapshot of every collection's loaded sources and current
// selection.
func (m *Manager) Info() (info Info) {
	return Info{
		V4:       m.v4.info(),
		V6:       m.v6.info(),
		Combined: m.combined.info(),
	}
}

// Lookup resolves ip: it consults ip's own family collection for a
// coordinate first, falling through to the combined collection if absent.
// The location for that coordinate is then tried against the combined, V4,
// and V6 selections in that order, since the same coordinate's metadata may
// have come from a different source database than the one that matched the
// prefix.
func (m *Manager) Lookup(ip netip.Addr) (info geoipdb.LookupInfo, ok bool) {
	fam := m.v6
	if ipaddr.FamilyOf(ip) == ipaddr.V4 {
		fam = m.v4
	}

	coord, ok := m.coordinateFrom(fam, ip)
	if !ok {
		coord, ok = m.coordinateFrom(m.combined, ip)
		if !ok {
			return info, false
		}
	}

	for _, f := range [...]*family{m.combined, m.v4, m.v6} {
		e := f.selected.Load()
		if e == nil {
			continue
		}

		e.borrow()
		loc, locOK := e.resource.GetLocation(coord)
		e.release()

		if locOK {
			return geoipdb.LookupInfo{
				Coordinate: coord,
				City:       loc.City,
				HasCity:    loc.HasCity,
				Region:     loc.Region,
				HasRegion:  loc.HasRegion,
				Country:    loc.CountryCode,
			}, true
		}
	}

	return info, false
}

func (m *Manager) coordinateFrom(f *family, ip netip.Addr) (c geocoord.Coordinate, ok bool) {
	e := f.selected.Load()
	if e == nil {
		return c, false
	}

	e.borrow()
	defer e.release()

	return e.resource.GetCoordinate(ip)
}
