package grinfra

// loopbackTypeOps builds the loopback interface type's vtable. Grounded on
// original_source/modules/infra/control/gr_loopback.h: loopback interfaces
// carry no member ports and no device-specific state, so every capability
// beyond basic flag/MTU bookkeeping is simply unsupported (ENOTSUP via the
// nil vtable slots below).
func loopbackTypeOps() *TypeOps {
	return &TypeOps{
		ID:   TypeLoopback,
		Name: "loopback",
		Init: func(iface *Iface, req *Request) error {
			iface.Flags |= FlagUp
			iface.State |= StateRunning
			return nil
		},
		Reconfig: func(iface *Iface, attrs SetAttrs, req *Request) error {
			if attrs&SetMTU != 0 {
				iface.MTU = req.MTU
			}
			if attrs&SetFlags != 0 {
				setFlag(iface, FlagUp, req.Flags&FlagUp != 0)
			}
			return nil
		},
		SetMTU: func(iface *Iface, mtu uint16) error {
			iface.MTU = mtu
			return nil
		},
	}
}
