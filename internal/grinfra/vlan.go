package grinfra

import "github.com/grout-project/groutd/internal/grerrno"

// VLANInfo is a VLAN sub-interface's type-specific state: a parent
// interface (usually a port or bond) plus the 802.1Q tag it filters on.
// Generalized from bond.c's add_vlan/del_vlan vtable ops, which apply the
// same membership-style bookkeeping to a standalone sub-interface here.
type VLANInfo struct {
	Parent ID
	Tag    uint16
}

func vlanInfo(iface *Iface) (*VLANInfo, error) {
	v, ok := iface.TypeInfo.(*VLANInfo)
	if !ok || v == nil {
		return nil, grerrno.EMEDIUMTYPE
	}
	return v, nil
}

// vlanTypeOps builds the VLAN interface type's vtable. table is closed over
// so Init/Reconfig can validate the parent interface exists and register
// the VLAN tag on it via AddVLAN/DelVLAN.
func vlanTypeOps(table *Table) *TypeOps {
	apply := func(iface *Iface, parent ID, tag uint16) error {
		v, _ := vlanInfo(iface)
		if v != nil && v.Parent != UndefID && v.Parent != parent {
			if parentIface, err := table.Get(v.Parent); err == nil {
				if ops, err := opsFor(parentIface.Type); err == nil && ops.DelVLAN != nil {
					_ = ops.DelVLAN(parentIface, v.Tag)
				}
			}
		}

		parentIface, err := table.Get(parent)
		if err != nil {
			return err
		}
		ops, err := opsFor(parentIface.Type)
		if err != nil {
			return err
		}
		if ops.AddVLAN == nil {
			return unsupported(parentIface.Type, "add_vlan")
		}
		if err := ops.AddVLAN(parentIface, tag); err != nil {
			return err
		}
		iface.TypeInfo = &VLANInfo{Parent: parent, Tag: tag}
		return nil
	}

	return &TypeOps{
		ID:   TypeVLAN,
		Name: "vlan",
		Init: func(iface *Iface, req *Request) error {
			return apply(iface, req.VLANParent, req.VLANTag)
		},
		Reconfig: func(iface *Iface, attrs SetAttrs, req *Request) error {
			if attrs&(SetVLANParent|SetVLANTag) == 0 {
				return nil
			}
			v, err := vlanInfo(iface)
			if err != nil {
				return err
			}
			parent, tag := v.Parent, v.Tag
			if attrs&SetVLANParent != 0 {
				parent = req.VLANParent
			}
			if attrs&SetVLANTag != 0 {
				tag = req.VLANTag
			}
			return apply(iface, parent, tag)
		},
		Fini: func(iface *Iface) error {
			v, err := vlanInfo(iface)
			if err != nil {
				return nil
			}
			parentIface, err := table.Get(v.Parent)
			if err != nil {
				return nil
			}
			if ops, err := opsFor(parentIface.Type); err == nil && ops.DelVLAN != nil {
				return ops.DelVLAN(parentIface, v.Tag)
			}
			return nil
		},
	}
}
