package grinfra

import (
	"github.com/grout-project/groutd/internal/grerrno"
)

// PortInfo is a physical (or virtual-device) port's type-specific state,
// grounded on original_source/modules/infra/cli/port.c's br_infra_port
// fields (device, rx/tx queue counts, rx burst size) plus the bond back-
// reference original_source/modules/infra/control/bond.c threads through
// iface_info_port.bond_iface_id.
type PortInfo struct {
	PortBondBackref

	DevArgs string
	NRxQ    uint16
	NTxQ    uint16
	Burst   uint16

	EthAddr [6]byte
	ExtraEthAddrs [][6]byte
	VLANs   []uint16
}

func portInfo(iface *Iface) (*PortInfo, error) {
	p, ok := iface.TypeInfo.(*PortInfo)
	if !ok || p == nil {
		return nil, grerrno.EMEDIUMTYPE
	}
	return p, nil
}

func portBondBackref(iface *Iface) (PortBondBackref, bool) {
	p, err := portInfo(iface)
	if err != nil {
		return PortBondBackref{}, false
	}
	return p.PortBondBackref, true
}

func setPortBondBackref(iface *Iface, bondID ID) {
	p, err := portInfo(iface)
	if err != nil {
		return
	}
	p.BondIfaceID = bondID
}

func portAddEthAddr(iface *Iface, mac [6]byte) error {
	p, err := portInfo(iface)
	if err != nil {
		return err
	}
	for _, existing := range p.ExtraEthAddrs {
		if existing == mac {
			return nil
		}
	}
	p.ExtraEthAddrs = append(p.ExtraEthAddrs, mac)
	return nil
}

func portDelEthAddr(iface *Iface, mac [6]byte) error {
	p, err := portInfo(iface)
	if err != nil {
		return err
	}
	for i, existing := range p.ExtraEthAddrs {
		if existing == mac {
			p.ExtraEthAddrs = append(p.ExtraEthAddrs[:i], p.ExtraEthAddrs[i+1:]...)
			return nil
		}
	}
	return nil
}

func portGetEthAddr(iface *Iface) ([6]byte, error) {
	p, err := portInfo(iface)
	if err != nil {
		return [6]byte{}, err
	}
	return p.EthAddr, nil
}

// portTypeOps builds the port interface type's vtable. Ports have no
// Reconfig of their own membership; set_mtu/promisc/allmulti/up_down act
// directly on the underlying device rather than fanning out to members.
func portTypeOps() *TypeOps {
	return &TypeOps{
		ID:   TypePort,
		Name: "port",
		Init: func(iface *Iface, req *Request) error {
			iface.TypeInfo = &PortInfo{PortBondBackref: PortBondBackref{BondIfaceID: UndefID}}
			return nil
		},
		Reconfig: func(iface *Iface, attrs SetAttrs, req *Request) error {
			if attrs&SetMTU != 0 {
				iface.MTU = req.MTU
			}
			if attrs&SetFlags != 0 {
				setFlag(iface, FlagUp, req.Flags&FlagUp != 0)
				setFlag(iface, FlagPromisc, req.Flags&FlagPromisc != 0)
				setFlag(iface, FlagAllmulti, req.Flags&FlagAllmulti != 0)
			}
			if attrs&SetEthAddr != 0 {
				p, err := portInfo(iface)
				if err != nil {
					return err
				}
				p.EthAddr = req.EthAddr
			}
			return nil
		},
		SetEthAddr: func(iface *Iface, mac [6]byte) error {
			p, err := portInfo(iface)
			if err != nil {
				return err
			}
			p.EthAddr = mac
			return nil
		},
		GetEthAddr: portGetEthAddr,
		AddEthAddr: portAddEthAddr,
		DelEthAddr: portDelEthAddr,
		SetMTU: func(iface *Iface, mtu uint16) error {
			iface.MTU = mtu
			return nil
		},
		SetPromisc: func(iface *Iface, enabled bool) error {
			setFlag(iface, FlagPromisc, enabled)
			return nil
		},
		SetAllmulti: func(iface *Iface, enabled bool) error {
			setFlag(iface, FlagAllmulti, enabled)
			return nil
		},
		SetUpDown: func(iface *Iface, up bool) error {
			setFlag(iface, FlagUp, up)
			return nil
		},
		AddVLAN: func(iface *Iface, vlanID uint16) error {
			p, err := portInfo(iface)
			if err != nil {
				return err
			}
			for _, v := range p.VLANs {
				if v == vlanID {
					return nil
				}
			}
			p.VLANs = append(p.VLANs, vlanID)
			return nil
		},
		DelVLAN: func(iface *Iface, vlanID uint16) error {
			p, err := portInfo(iface)
			if err != nil {
				return err
			}
			for i, v := range p.VLANs {
				if v == vlanID {
					p.VLANs = append(p.VLANs[:i], p.VLANs[i+1:]...)
					return nil
				}
			}
			return nil
		},
	}
}

func setFlag(iface *Iface, flag Flags, enabled bool) {
	if enabled {
		iface.Flags |= flag
	} else {
		iface.Flags &^= flag
	}
}
