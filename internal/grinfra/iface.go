// Package grinfra implements the control plane's interface table (§4.D):
// a polymorphic registry of network interfaces (port, bond, loopback,
// vlan) dispatched through a per-type capability vtable, plus the bond
// aggregation subsystem (§4.G) built directly on top of it. It is grounded
// on original_source/modules/infra/control/{bond.c,gr_bond.h,gr_loopback.h}
// and original_source/modules/infra/cli/{port.c,gr_cli_iface.h}, with the
// capability-vtable idiom generalized from caddyserver-caddy/modules.go's
// Module/ModuleInfo registration pattern.
package grinfra

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/grout-project/groutd/internal/grerrno"
	"github.com/grout-project/groutd/internal/grlog"
	"go.uber.org/zap"
)

var log = grlog.Named("infra")

// NameMaxLen bounds an interface name's length in bytes, matching the
// original's fixed-size name buffer.
const NameMaxLen = 64

// ID identifies an interface. Zero is never a valid, assigned ID.
type ID uint32

// UndefID is the weak-reference sentinel used for "no interface", matching
// the original's GR_IFACE_ID_UNDEF (e.g. an unbonded port's bond back-
// reference).
const UndefID ID = 0

// Type identifies an interface's concrete kind and its vtable.
type Type uint8

const (
	TypeUndef Type = iota
	TypePort
	TypeBond
	TypeLoopback
	TypeVLAN
)

func (t Type) String() string {
	switch t {
	case TypePort:
		return "port"
	case TypeBond:
		return "bond"
	case TypeLoopback:
		return "loopback"
	case TypeVLAN:
		return "vlan"
	default:
		return "undef"
	}
}

// Flags are persistent, user-requested interface attributes (GR_IFACE_F_*).
type Flags uint16

const (
	FlagUp Flags = 1 << iota
	FlagPromisc
	FlagAllmulti
)

// State reflects runtime-derived attributes the control plane cannot set
// directly (GR_IFACE_S_*): RUNNING follows carrier/link state, ACTIVE marks
// a bond's currently forwarding member.
type State uint16

const (
	StateRunning State = 1 << iota
	StateActive
)

// Iface is one entry in the interface table. TypeInfo holds the
// type-specific private state (e.g. *BondInfo, *PortInfo) and is only
// meaningful together with Type.
type Iface struct {
	ID     ID
	Name   string
	Type   Type
	VRF    uint16
	MTU    uint16
	Flags  Flags
	State  State
	EthAddr [6]byte

	TypeInfo any
}

// Table is the interface registry: id- and name-indexed, with VRF
// filtering for wildcard listing queries (§4.D).
type Table struct {
	mu     sync.RWMutex
	byID   map[ID]*Iface
	byName map[string]*Iface
	nextID ID
}

// NewTable returns an empty interface table.
func NewTable() *Table {
	return &Table{byID: make(map[ID]*Iface), byName: make(map[string]*Iface)}
}

// ValidateName checks an interface name against the original's constraints:
// non-empty, at most NameMaxLen bytes, and valid UTF-8 (the original checks
// single-byte-clean ASCII; UTF-8 validity is the idiomatic Go equivalent of
// its EILSEQ check).
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name: %w", grerrno.ENOENT)
	}
	if len(name) > NameMaxLen {
		return fmt.Errorf("interface name %q: %w", name, grerrno.ENAMETOOLONG)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("interface name %q: %w", name, grerrno.EILSEQ)
	}
	return nil
}

// Add allocates an ID and inserts iface into the table. iface.ID is
// overwritten with the allocated value. Returns EEXIST if the name is
// already taken.
func (t *Table) Add(iface *Iface) error {
	if err := ValidateName(iface.Name); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byName[iface.Name]; ok {
		return fmt.Errorf("interface %q: %w", iface.Name, grerrno.EEXIST)
	}

	t.nextID++
	iface.ID = t.nextID
	t.byID[iface.ID] = iface
	t.byName[iface.Name] = iface

	log.Debug("interface added", zap.Uint32("id", uint32(iface.ID)), zap.String("name", iface.Name), zap.Stringer("type", iface.Type))
	return nil
}

// Get looks up an interface by ID.
func (t *Table) Get(id ID) (*Iface, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	iface, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("interface %d: %w", id, grerrno.ENODEV)
	}
	return iface, nil
}

// GetByName looks up an interface by name.
func (t *Table) GetByName(name string) (*Iface, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	iface, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("interface %q: %w", name, grerrno.ENODEV)
	}
	return iface, nil
}

// Delete removes an interface. missingOK mirrors the gridem idempotent-
// delete convention: when true, deleting an already-absent interface
// succeeds silently instead of returning ENODEV.
func (t *Table) Delete(id ID, missingOK bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	iface, ok := t.byID[id]
	if !ok {
		if missingOK {
			return nil
		}
		return fmt.Errorf("interface %d: %w", id, grerrno.ENODEV)
	}
	delete(t.byID, id)
	delete(t.byName, iface.Name)
	log.Debug("interface deleted", zap.Uint32("id", uint32(id)), zap.String("name", iface.Name))
	return nil
}

// List returns every interface in the table, in ascending ID order. When
// vrf is non-nil, only interfaces in that VRF are returned — the table's
// VRF-wildcard query (a nil vrf means "every VRF", matching the original
// CLI's wildcard listing convention).
func (t *Table) List(vrf *uint16) []*Iface {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Iface, 0, len(t.byID))
	for _, iface := range t.byID {
		if vrf != nil && iface.VRF != *vrf {
			continue
		}
		out = append(out, iface)
	}
	sortIfacesByID(out)
	return out
}

func sortIfacesByID(ifaces []*Iface) {
	for i := 1; i < len(ifaces); i++ {
		for j := i; j > 0 && ifaces[j-1].ID > ifaces[j].ID; j-- {
			ifaces[j-1], ifaces[j] = ifaces[j], ifaces[j-1]
		}
	}
}
