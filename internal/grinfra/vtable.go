package grinfra

import (
	"fmt"
	"sync"

	"github.com/grout-project/groutd/internal/grerrno"
)

// SetAttrs is the attribute bitmask carried by a Reconfig request (§4.D):
// either the sentinel SetAll (full replace, as at interface creation) or a
// bitwise-OR of the individual Set* bits naming which fields of Request are
// meaningful, matching the original's IFACE_SET_ALL vs. per-field
// GR_*_SET_* masks.
type SetAttrs uint64

const (
	// SetAll mirrors IFACE_SET_ALL: every field of the request is
	// significant, as used by a type's Init.
	SetAll SetAttrs = ^SetAttrs(0)

	SetName SetAttrs = 1 << iota
	SetVRF
	SetMTU
	SetFlags
	SetEthAddr

	// Bond-specific attributes, matching GR_BOND_SET_*.
	SetBondMode
	SetBondMembers
	SetBondPrimary

	// VLAN-specific attributes.
	SetVLANParent
	SetVLANTag
)

// Request carries every field a Reconfig call might set; SetAttrs says
// which of them are meaningful for this call.
type Request struct {
	Name    string
	VRF     uint16
	MTU     uint16
	Flags   Flags
	EthAddr [6]byte

	BondMode    BondMode
	BondMembers []ID
	BondPrimary uint8

	VLANParent ID
	VLANTag    uint16
}

// TypeOps is the per-type capability vtable (the original's
// `struct iface_type`): every field is optional, and a nil field means the
// operation is unsupported for that type (ENOTSUP), matching the original's
// loose per-type function pointer population.
type TypeOps struct {
	ID   Type
	Name string

	// Init constructs the type-specific TypeInfo for a newly-added
	// interface, equivalent to invoking Reconfig once with SetAll.
	Init func(iface *Iface, req *Request) error

	// Reconfig applies the attributes named by attrs from req onto
	// iface's existing TypeInfo.
	Reconfig func(iface *Iface, attrs SetAttrs, req *Request) error

	// Fini releases any per-member or external state held by TypeInfo
	// before the interface is removed from the table.
	Fini func(iface *Iface) error

	SetEthAddr func(iface *Iface, mac [6]byte) error
	GetEthAddr func(iface *Iface) ([6]byte, error)
	AddEthAddr func(iface *Iface, mac [6]byte) error
	DelEthAddr func(iface *Iface, mac [6]byte) error

	SetMTU     func(iface *Iface, mtu uint16) error
	SetPromisc func(iface *Iface, enabled bool) error
	SetAllmulti func(iface *Iface, enabled bool) error
	SetUpDown  func(iface *Iface, up bool) error

	AddVLAN func(iface *Iface, vlanID uint16) error
	DelVLAN func(iface *Iface, vlanID uint16) error
}

var (
	typesMu sync.RWMutex
	types   = map[Type]*TypeOps{}
)

// RegisterType installs ops under ops.ID, panicking on a duplicate
// registration the same way grmodule.Register does — both treat a second
// registration of the same key as a programming error.
func RegisterType(ops *TypeOps) {
	typesMu.Lock()
	defer typesMu.Unlock()
	if _, dup := types[ops.ID]; dup {
		panic(fmt.Sprintf("grinfra: interface type %q already registered", ops.Name))
	}
	types[ops.ID] = ops
}

// ResetTypes clears the type registry. Test-only.
func ResetTypes() {
	typesMu.Lock()
	defer typesMu.Unlock()
	types = map[Type]*TypeOps{}
}

// opsFor looks up the vtable for t, or ENODEV if no type is registered
// under it (a malformed request naming an unknown type).
func opsFor(t Type) (*TypeOps, error) {
	typesMu.RLock()
	defer typesMu.RUnlock()
	ops, ok := types[t]
	if !ok {
		return nil, fmt.Errorf("interface type %v: %w", t, grerrno.ENODEV)
	}
	return ops, nil
}

// unsupported builds the ENOTSUP error for a nil vtable slot, naming both
// the type and the operation for diagnosability.
func unsupported(t Type, op string) error {
	return fmt.Errorf("%s: %s: %w", t, op, grerrno.ENOTSUP)
}
