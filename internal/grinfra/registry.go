package grinfra

import (
	"context"

	"github.com/grout-project/groutd/internal/grevent"
)

// Topics for interface-status events, matching the original's
// GR_EVENT_IFACE_STATUS_UP/DOWN.
const (
	TopicIfaceStatusUp   = "iface.status.up"
	TopicIfaceStatusDown = "iface.status.down"
)

// RegisterBuiltinTypes installs the port, bond, loopback and vlan interface
// types into the global type registry, to be called once at startup from
// the same priority tier as the original's RTE_INIT(bond_constructor).
func RegisterBuiltinTypes(table *Table) {
	RegisterType(portTypeOps())
	RegisterType(bondTypeOps(table))
	RegisterType(loopbackTypeOps())
	RegisterType(vlanTypeOps(table))
}

// SubscribeBondEvents wires the RUNNING state bit and bond active-member
// re-evaluation to the interface-status topics, the Go analogue of bond.c's
// gr_event_subscribe(&bond_event_handler). §4.D requires that `state` only
// ever change from an event handler; this is that handler for
// IFACE_STATUS_UP/DOWN, setting or clearing StateRunning before bond
// active-member selection (which keys on exactly that bit) re-runs.
func SubscribeBondEvents(bus *grevent.Bus, table *Table) {
	handler := func(ctx context.Context, ev grevent.Event) {
		member, ok := ev.Payload.(*Iface)
		if !ok {
			return
		}
		switch ev.Topic {
		case TopicIfaceStatusUp:
			member.State |= StateRunning
		case TopicIfaceStatusDown:
			member.State &^= StateRunning
		}
		_ = OnMemberStatusChanged(table, member)
	}
	bus.Subscribe(TopicIfaceStatusUp, handler)
	bus.Subscribe(TopicIfaceStatusDown, handler)
}

// BondSnapshot mirrors bond_to_api: a read-only summary of a bond's current
// state, suitable for marshaling into a response payload.
type BondSnapshot struct {
	Mode          BondMode
	Mac           [6]byte
	PrimaryMember uint8
	ActiveMember  uint8
	MemberIDs     []ID
}

// Snapshot returns iface's current bond state, or EMEDIUMTYPE if iface is
// not a bond.
func Snapshot(iface *Iface) (BondSnapshot, error) {
	b, err := bondInfo(iface)
	if err != nil {
		return BondSnapshot{}, err
	}
	ids := make([]ID, len(b.Members))
	for i, m := range b.Members {
		ids[i] = m.ID
	}
	return BondSnapshot{
		Mode:          b.Mode,
		Mac:           b.Mac,
		PrimaryMember: b.PrimaryMember,
		ActiveMember:  b.ActiveMember,
		MemberIDs:     ids,
	}, nil
}
