package grinfra

import (
	"errors"
	"fmt"

	"github.com/grout-project/groutd/internal/grerrno"
	"github.com/grout-project/groutd/internal/grlog"
	"go.uber.org/zap"
)

var bondLog = grlog.Named("bond")

// BondMode is the aggregation policy, mirroring gr_bond_mode_t. Only
// ACTIVE_BACKUP is implemented, matching the one mode bond.c's
// bond_set_active_members switches on.
type BondMode uint8

const (
	BondModeActiveBackup BondMode = iota
)

// MaxBondMembers bounds how many ports one bond can hold, matching the
// original's fixed-size `members[ARRAY_DIM(...)]` array.
const MaxBondMembers = 16

// UndefMember is the original's UINT8_MAX sentinel meaning "no active
// member selected".
const UndefMember uint8 = 0xFF

// BondInfo is a bond interface's type-specific state, the Go analogue of
// `struct iface_info_bond`.
type BondInfo struct {
	Mode BondMode
	Mac  [6]byte

	PrimaryMember uint8
	ActiveMember  uint8
	Members       []*Iface

	// ExtraMacs are additional unicast addresses propagated to every
	// member (bond_mac_add/bond_mac_del), beyond the bond's own Mac.
	ExtraMacs [][6]byte
}

// PortBondBackref is carried in a port Iface's TypeInfo (or adjacent state)
// to record which bond, if any, currently owns it — the Go analogue of
// `iface_info_port.bond_iface_id`. PortInfo embeds this.
type PortBondBackref struct {
	BondIfaceID ID
}

// member op hooks: indirections over the port-specific primitives the
// original calls directly (iface_add_eth_addr, iface_set_mtu, ...), kept as
// package-level vars so bond logic can be exercised without a full port
// vtable wired in (tests substitute fakes here).
var (
	memberAddEthAddr = func(member *Iface, mac [6]byte) error { return portAddEthAddr(member, mac) }
	memberDelEthAddr = func(member *Iface, mac [6]byte) error { return portDelEthAddr(member, mac) }
	memberGetEthAddr = func(member *Iface) ([6]byte, error) { return portGetEthAddr(member) }
)

func bondInfo(iface *Iface) (*BondInfo, error) {
	b, ok := iface.TypeInfo.(*BondInfo)
	if !ok || b == nil {
		return nil, fmt.Errorf("interface %q is not a bond: %w", iface.Name, grerrno.EMEDIUMTYPE)
	}
	return b, nil
}

// bondAllMemberMAC mirrors bond_all_member_mac: adds or removes mac on
// every current member, stopping at the first failure.
func bondAllMemberMAC(b *BondInfo, mac [6]byte, add bool) error {
	for _, member := range b.Members {
		var err error
		if add {
			err = memberAddEthAddr(member, mac)
		} else {
			err = memberDelEthAddr(member, mac)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// BondMacAdd mirrors bond_mac_add.
func BondMacAdd(iface *Iface, mac [6]byte) error {
	b, err := bondInfo(iface)
	if err != nil {
		return err
	}
	if err := bondAllMemberMAC(b, mac, true); err != nil {
		return err
	}
	b.ExtraMacs = append(b.ExtraMacs, mac)
	return nil
}

// BondMacDel mirrors bond_mac_del: unlike the add path, a per-member
// failure is logged and ignored, matching the original's lack of an error
// check on bond_all_member_mac's return value in the del path.
func BondMacDel(iface *Iface, mac [6]byte) error {
	b, err := bondInfo(iface)
	if err != nil {
		return err
	}
	if err := bondAllMemberMAC(b, mac, false); err != nil {
		bondLog.Warn("failed to remove mac from bond members", zap.String("bond", iface.Name), zap.Error(err))
	}

	for i, m := range b.ExtraMacs {
		if m == mac {
			b.ExtraMacs = append(b.ExtraMacs[:i], b.ExtraMacs[i+1:]...)
			break
		}
	}
	return nil
}

// BondMacSet mirrors bond_mac_set.
func BondMacSet(iface *Iface, mac [6]byte) error {
	b, err := bondInfo(iface)
	if err != nil {
		return err
	}
	if err := bondAllMemberMAC(b, b.Mac, false); err != nil {
		return err
	}
	if err := bondAllMemberMAC(b, mac, true); err != nil {
		return err
	}
	b.Mac = mac
	return nil
}

// BondMacGet mirrors bond_mac_get.
func BondMacGet(iface *Iface) ([6]byte, error) {
	b, err := bondInfo(iface)
	if err != nil {
		return [6]byte{}, err
	}
	return b.Mac, nil
}

// bondInitNewMembers mirrors bond_init_new_members: for every member named
// in newMembers that the bond does not already hold, validate it is a port,
// propagate the bond's extra MACs onto it, and record the back-reference.
// A failure partway through leaves prior members already joined in place —
// this function is intentionally not all-or-nothing, matching the
// original's lack of any unwind-on-failure logic.
func bondInitNewMembers(table *Table, iface *Iface, b *BondInfo, newMembers []ID) error {
	for _, id := range newMembers {
		member, err := table.Get(id)
		if err != nil {
			return err
		}
		if member.Type != TypePort {
			return fmt.Errorf("member %q: %w", member.Name, grerrno.EMEDIUMTYPE)
		}

		alreadyMember := false
		for _, existing := range b.Members {
			if existing.ID == member.ID {
				alreadyMember = true
				break
			}
		}
		if alreadyMember {
			continue
		}

		bondLog.Debug("adding member to bond", zap.String("member", member.Name), zap.String("bond", iface.Name))
		for _, mac := range b.ExtraMacs {
			if err := memberAddEthAddr(member, mac); err != nil {
				bondLog.Error("failed to configure mac on new member", zap.String("member", member.Name), zap.Error(err))
				return err
			}
		}

		setPortBondBackref(member, iface.ID)
	}
	return nil
}

// bondFiniOldMembers mirrors bond_fini_old_members: best-effort, logs and
// continues on a per-member MAC removal failure rather than aborting.
func bondFiniOldMembers(iface *Iface, b *BondInfo, newMembers []ID) {
	for _, member := range b.Members {
		stillMember := false
		for _, id := range newMembers {
			if id == member.ID {
				stillMember = true
				break
			}
		}
		if stillMember {
			continue
		}

		bondLog.Debug("removing member from bond", zap.String("member", member.Name), zap.String("bond", iface.Name))
		for _, mac := range b.ExtraMacs {
			if err := memberDelEthAddr(member, mac); err != nil && !errors.Is(err, grerrno.EOPNOTSUPP) {
				bondLog.Warn("failed to unconfigure mac on departing member", zap.String("member", member.Name), zap.Error(err))
			}
		}

		setPortBondBackref(member, UndefID)
	}
}

// bondSetActiveMembers mirrors bond_set_active_members: selects the first
// UP+RUNNING member, preferring the configured primary member on a tie,
// reads its MAC address before mutating any state (so a failed MAC read
// leaves the bond's existing state untouched), then atomically updates
// every member's ACTIVE state flag.
func bondSetActiveMembers(iface *Iface, b *BondInfo) error {
	switch b.Mode {
	case BondModeActiveBackup:
		activeIdx := -1
		for i, member := range b.Members {
			eligible := member.Flags&FlagUp != 0 && member.State&StateRunning != 0
			if eligible && (activeIdx == -1 || i == int(b.PrimaryMember)) {
				activeIdx = i
			}
		}

		var newMac [6]byte
		if activeIdx != -1 {
			mac, err := memberGetEthAddr(b.Members[activeIdx])
			if err != nil {
				return err
			}
			newMac = mac
		}

		for i, member := range b.Members {
			if i == activeIdx {
				b.Mac = newMac
				member.State |= StateActive
				bondLog.Info("bond active member changed", zap.String("bond", iface.Name), zap.String("member", member.Name))
			} else {
				member.State &^= StateActive
			}
		}

		if activeIdx == -1 {
			b.ActiveMember = UndefMember
		} else {
			b.ActiveMember = uint8(activeIdx)
		}
	}
	return nil
}

// BondReconfig mirrors bond_reconfig: applies attrs from req onto b,
// re-evaluating the active member whenever membership or the primary
// member changes.
func BondReconfig(table *Table, iface *Iface, attrs SetAttrs, req *Request) error {
	b, err := bondInfo(iface)
	if err != nil {
		return err
	}
	reconfig := attrs != SetAll

	if attrs&SetEthAddr != 0 && reconfig {
		_ = bondAllMemberMAC(b, b.Mac, false)
	}

	if attrs&SetBondMode != 0 {
		b.Mode = req.BondMode
	}

	if attrs&SetBondMembers != 0 {
		if len(req.BondMembers) > MaxBondMembers {
			return grerrno.ERANGE
		}
		if err := bondInitNewMembers(table, iface, b, req.BondMembers); err != nil {
			return err
		}
		bondFiniOldMembers(iface, b, req.BondMembers)

		members := make([]*Iface, 0, len(req.BondMembers))
		for _, id := range req.BondMembers {
			m, err := table.Get(id)
			if err != nil {
				return err
			}
			members = append(members, m)
		}
		b.Members = members
	}

	if attrs&SetBondPrimary != 0 {
		if int(req.BondPrimary) >= len(b.Members) {
			return grerrno.ERANGE
		}
		b.PrimaryMember = req.BondPrimary
	}

	if attrs&(SetBondMembers|SetBondPrimary) != 0 {
		if err := bondSetActiveMembers(iface, b); err != nil {
			return err
		}
	}

	if attrs&SetEthAddr != 0 && req.EthAddr != ([6]byte{}) {
		if err := bondAllMemberMAC(b, req.EthAddr, true); err != nil {
			return err
		}
		b.Mac = req.EthAddr
	}

	return nil
}

// BondFini mirrors bond_fini: departs every member and drops extra MACs.
func BondFini(iface *Iface) error {
	b, err := bondInfo(iface)
	if err != nil {
		return err
	}
	bondFiniOldMembers(iface, b, nil)
	b.ExtraMacs = nil
	return nil
}

// bondTypeOps builds the bond interface type's vtable. table is closed over
// so Reconfig can resolve member IDs against the live interface table.
func bondTypeOps(table *Table) *TypeOps {
	return &TypeOps{
		ID:   TypeBond,
		Name: "bond",
		Init: func(iface *Iface, req *Request) error {
			iface.TypeInfo = &BondInfo{ActiveMember: UndefMember}
			return BondReconfig(table, iface, SetAll, req)
		},
		Reconfig: func(iface *Iface, attrs SetAttrs, req *Request) error {
			return BondReconfig(table, iface, attrs, req)
		},
		Fini:       BondFini,
		SetEthAddr: BondMacSet,
		GetEthAddr: BondMacGet,
		AddEthAddr: BondMacAdd,
		DelEthAddr: BondMacDel,
		SetMTU: func(iface *Iface, mtu uint16) error {
			b, err := bondInfo(iface)
			if err != nil {
				return err
			}
			for _, member := range b.Members {
				if mtu == 0 && member.MTU != 0 {
					mtu = member.MTU
					continue
				}
				member.MTU = mtu
			}
			iface.MTU = mtu
			return nil
		},
		SetPromisc: func(iface *Iface, enabled bool) error {
			return bondAllMembersFlag(iface, FlagPromisc, enabled)
		},
		SetAllmulti: func(iface *Iface, enabled bool) error {
			return bondAllMembersFlag(iface, FlagAllmulti, enabled)
		},
		SetUpDown: func(iface *Iface, up bool) error {
			return bondAllMembersFlag(iface, FlagUp, up)
		},
		AddVLAN: func(iface *Iface, vlanID uint16) error {
			return bondAllMembersVLAN(table, iface, vlanID, true)
		},
		DelVLAN: func(iface *Iface, vlanID uint16) error {
			return bondAllMembersVLAN(table, iface, vlanID, false)
		},
	}
}

// bondAllMembersVLAN mirrors bond_vlan_add/bond_vlan_del: propagates a VLAN
// tag to every member port via the port vtable's own AddVLAN/DelVLAN.
func bondAllMembersVLAN(table *Table, iface *Iface, vlanID uint16, add bool) error {
	b, err := bondInfo(iface)
	if err != nil {
		return err
	}
	for _, member := range b.Members {
		ops, err := opsFor(member.Type)
		if err != nil {
			return err
		}
		if add {
			if ops.AddVLAN == nil {
				return unsupported(member.Type, "add_vlan")
			}
			if err := ops.AddVLAN(member, vlanID); err != nil {
				return err
			}
		} else {
			if ops.DelVLAN == nil {
				continue
			}
			if err := ops.DelVLAN(member, vlanID); err != nil {
				return err
			}
		}
	}
	return nil
}

// bondAllMembersFlag mirrors bond_all_members_flag: propagates a boolean
// flag to every member, then updates the bond's own flag bit.
func bondAllMembersFlag(iface *Iface, flag Flags, enabled bool) error {
	b, err := bondInfo(iface)
	if err != nil {
		return err
	}
	for _, member := range b.Members {
		if enabled {
			member.Flags |= flag
		} else {
			member.Flags &^= flag
		}
	}
	if enabled {
		iface.Flags |= flag
	} else {
		iface.Flags &^= flag
	}
	return nil
}

// OnMemberStatusChanged mirrors bond_event: re-evaluates a bond's active
// member whenever one of its ports transitions UP or DOWN. Subscribe this
// to the "iface.status.up"/"iface.status.down" topics on the event bus.
func OnMemberStatusChanged(table *Table, member *Iface) error {
	if member.Type != TypePort {
		return nil
	}
	backref, ok := portBondBackref(member)
	if !ok || backref.BondIfaceID == UndefID {
		return nil
	}
	bond, err := table.Get(backref.BondIfaceID)
	if err != nil {
		return err
	}
	if bond.Type != TypeBond {
		return fmt.Errorf("interface %q: %w", bond.Name, grerrno.EMEDIUMTYPE)
	}
	b, err := bondInfo(bond)
	if err != nil {
		return err
	}
	return bondSetActiveMembers(bond, b)
}
