package grinfra

// Generic attribute helpers (§4.D): each looks up an interface by id and
// delegates straight to its type's vtable, returning ENOTSUP when the slot
// is nil. These are grounded on original_source/modules/infra/control/
// bond.c's own call sites for the analogous generic functions —
// `iface_set_mtu(member->id, mtu)`, `iface_add_eth_addr(member->id, mac)`,
// `iface_add_vlan(member->id, vlan_id)` — which operate by interface id and
// dispatch through the vtable rather than through a bundled Reconfig
// request, distinct from (and used standalone of) Table.Reconfig's
// attribute-masked bulk updates.

// SetMTU sets iface's MTU via its type's vtable.
func (t *Table) SetMTU(id ID, mtu uint16) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.SetMTU == nil {
		return unsupported(iface.Type, "set_mtu")
	}
	return ops.SetMTU(iface, mtu)
}

// SetPromisc toggles promiscuous mode on iface via its type's vtable.
func (t *Table) SetPromisc(id ID, enabled bool) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.SetPromisc == nil {
		return unsupported(iface.Type, "set_promisc")
	}
	return ops.SetPromisc(iface, enabled)
}

// SetAllmulti toggles all-multicast mode on iface via its type's vtable.
func (t *Table) SetAllmulti(id ID, enabled bool) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.SetAllmulti == nil {
		return unsupported(iface.Type, "set_allmulti")
	}
	return ops.SetAllmulti(iface, enabled)
}

// SetUpDown administratively brings iface up or down via its type's
// vtable. This sets the admin FlagUp bit only; the StateRunning bit is
// written exclusively by IFACE_STATUS_UP/DOWN event handlers (§4.D rule
// 2), never by this call directly.
func (t *Table) SetUpDown(id ID, up bool) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.SetUpDown == nil {
		return unsupported(iface.Type, "set_up_down")
	}
	return ops.SetUpDown(iface, up)
}

// SetEthAddr replaces iface's primary MAC address via its type's vtable.
func (t *Table) SetEthAddr(id ID, mac [6]byte) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.SetEthAddr == nil {
		return unsupported(iface.Type, "set_eth_addr")
	}
	return ops.SetEthAddr(iface, mac)
}

// GetEthAddr reads iface's primary MAC address via its type's vtable.
func (t *Table) GetEthAddr(id ID) ([6]byte, error) {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return [6]byte{}, err
	}
	if ops.GetEthAddr == nil {
		return [6]byte{}, unsupported(iface.Type, "get_eth_addr")
	}
	return ops.GetEthAddr(iface)
}

// AddEthAddr adds a secondary MAC address to iface via its type's vtable.
func (t *Table) AddEthAddr(id ID, mac [6]byte) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.AddEthAddr == nil {
		return unsupported(iface.Type, "add_eth_addr")
	}
	return ops.AddEthAddr(iface, mac)
}

// DelEthAddr removes a secondary MAC address from iface via its type's
// vtable.
func (t *Table) DelEthAddr(id ID, mac [6]byte) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.DelEthAddr == nil {
		return unsupported(iface.Type, "del_eth_addr")
	}
	return ops.DelEthAddr(iface, mac)
}

// AddVLAN registers vlanID as a filtered tag on iface via its type's
// vtable.
func (t *Table) AddVLAN(id ID, vlanID uint16) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.AddVLAN == nil {
		return unsupported(iface.Type, "add_vlan")
	}
	return ops.AddVLAN(iface, vlanID)
}

// DelVLAN removes vlanID from iface's filtered tags via its type's vtable.
func (t *Table) DelVLAN(id ID, vlanID uint16) error {
	iface, ops, err := t.lookupOps(id)
	if err != nil {
		return err
	}
	if ops.DelVLAN == nil {
		return unsupported(iface.Type, "del_vlan")
	}
	return ops.DelVLAN(iface, vlanID)
}

// lookupOps resolves id to its Iface and type vtable in one call, the
// common prefix of every generic attribute helper above.
func (t *Table) lookupOps(id ID) (*Iface, *TypeOps, error) {
	iface, err := t.Get(id)
	if err != nil {
		return nil, nil, err
	}
	ops, err := opsFor(iface.Type)
	if err != nil {
		return nil, nil, err
	}
	return iface, ops, nil
}
