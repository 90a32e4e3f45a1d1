// Package grhandlers registers the concrete request-type handlers the API
// server dispatches into (§4.E/§4.F): interface create/get/list/delete and
// bond membership reconfiguration. Request and response payloads are
// encoded as JSON — the spec leaves payload encoding type-dependent and
// opaque (§4.C: "a type-dependent opaque payload"), and JSON is the
// encoding caddyserver-caddy's own admin API (modules/caddyhttp/admin.go)
// uses for its request/response bodies, so the same choice is carried here
// rather than inventing a binary schema the spec does not mandate.
package grhandlers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/grout-project/groutd/internal/gridem"
	"github.com/grout-project/groutd/internal/grapi"
	"github.com/grout-project/groutd/internal/grerrno"
	"github.com/grout-project/groutd/internal/grevent"
	"github.com/grout-project/groutd/internal/grinfra"
	"github.com/grout-project/groutd/internal/grlog"
	"github.com/grout-project/groutd/internal/grmetrics"
	"go.uber.org/zap"
)

var log = grlog.Named("api.handlers")

// Module identifies the owning subsystem of a request type, the `module`
// half of the `{module: u16, kind: u16}` encoding in §4.A.
type Module uint16

const (
	ModuleInfra Module = 1
)

const (
	topicIfaceAdded   = "IFACE_ADDED"
	topicIfaceDeleted = "IFACE_DELETED"
)

// Kind identifies one operation within a module, the `kind` half of the
// request type.
type Kind uint16

const (
	KindIfaceAdd Kind = iota + 1
	KindIfaceGet
	KindIfaceList
	KindIfaceDel
	KindIfaceReconfig

	// Generic attribute helpers (§4.D): standalone, interface-id-addressed
	// operations distinct from the bundled KindIfaceReconfig call, each
	// delegating to the target type's vtable and returning ENOTSUP when
	// unsupported.
	KindSetMTU
	KindSetPromisc
	KindSetAllmulti
	KindSetUpDown
	KindSetEthAddr
	KindGetEthAddr
	KindAddEthAddr
	KindDelEthAddr
	KindAddVLAN
	KindDelVLAN
)

// RequestType packs module and kind into the u32 request_type carried on
// the wire, matching the spec's `type encodes {module: u16, kind: u16}`.
func RequestType(m Module, k Kind) uint32 {
	return uint32(m)<<16 | uint32(k)
}

// IfaceAddRequest is the JSON payload for KindIfaceAdd.
type IfaceAddRequest struct {
	Name    string       `json:"name"`
	Type    grinfra.Type `json:"type"`
	VRF     uint16       `json:"vrf"`
	MTU     uint16       `json:"mtu"`
	ExistOK bool         `json:"exist_ok"`
}

// IfaceAddResponse is the JSON payload returned by KindIfaceAdd.
type IfaceAddResponse struct {
	ID grinfra.ID `json:"id"`
}

// IfaceGetRequest is the JSON payload for KindIfaceGet.
type IfaceGetRequest struct {
	ID grinfra.ID `json:"id"`
}

// IfaceListRequest is the JSON payload for KindIfaceList. A nil VRF
// (omitted field) means "all VRFs", matching Table.List's wildcard query.
type IfaceListRequest struct {
	VRF *uint16 `json:"vrf,omitempty"`
}

// IfaceListResponse is the JSON payload returned by KindIfaceList.
type IfaceListResponse struct {
	Ifaces []*grinfra.Iface `json:"ifaces"`
}

// IfaceDelRequest is the JSON payload for KindIfaceDel.
type IfaceDelRequest struct {
	ID        grinfra.ID `json:"id"`
	MissingOK bool       `json:"missing_ok"`
}

// IfaceReconfigRequest is the JSON payload for KindIfaceReconfig.
type IfaceReconfigRequest struct {
	ID    grinfra.ID       `json:"id"`
	Attrs grinfra.SetAttrs `json:"attrs"`
	Req   grinfra.Request  `json:"req"`
}

// SetMTURequest is the JSON payload for KindSetMTU.
type SetMTURequest struct {
	ID  grinfra.ID `json:"id"`
	MTU uint16     `json:"mtu"`
}

// SetFlagRequest is the JSON payload shared by KindSetPromisc, KindSetAllmulti
// and KindSetUpDown: each names a single interface and a boolean toggle.
type SetFlagRequest struct {
	ID      grinfra.ID `json:"id"`
	Enabled bool       `json:"enabled"`
}

// EthAddrRequest is the JSON payload shared by KindSetEthAddr, KindAddEthAddr
// and KindDelEthAddr.
type EthAddrRequest struct {
	ID      grinfra.ID `json:"id"`
	EthAddr [6]byte    `json:"eth_addr"`
}

// GetEthAddrRequest is the JSON payload for KindGetEthAddr.
type GetEthAddrRequest struct {
	ID grinfra.ID `json:"id"`
}

// GetEthAddrResponse is the JSON payload returned by KindGetEthAddr.
type GetEthAddrResponse struct {
	EthAddr [6]byte `json:"eth_addr"`
}

// VLANRequest is the JSON payload shared by KindAddVLAN and KindDelVLAN.
type VLANRequest struct {
	ID  grinfra.ID `json:"id"`
	Tag uint16     `json:"tag"`
}

// Register installs every interface-table handler onto reg, dispatching
// into table and publishing lifecycle events onto bus the way the
// original's gr_iface_api.c handlers call iface_create/iface_destroy and
// let those emit GR_EVENT_IFACE_* directly.
func Register(reg *grapi.Registry, table *grinfra.Table, bus *grevent.Bus) {
	reg.Register(grapi.Handler{
		Name:        "iface_add",
		RequestType: RequestType(ModuleInfra, KindIfaceAdd),
		Callback:    handleIfaceAdd(table, bus),
	})
	reg.Register(grapi.Handler{
		Name:        "iface_get",
		RequestType: RequestType(ModuleInfra, KindIfaceGet),
		Callback:    handleIfaceGet(table),
	})
	reg.Register(grapi.Handler{
		Name:        "iface_list",
		RequestType: RequestType(ModuleInfra, KindIfaceList),
		Callback:    handleIfaceList(table),
	})
	reg.Register(grapi.Handler{
		Name:        "iface_del",
		RequestType: RequestType(ModuleInfra, KindIfaceDel),
		Callback:    handleIfaceDel(table, bus),
	})
	reg.Register(grapi.Handler{
		Name:        "iface_reconfig",
		RequestType: RequestType(ModuleInfra, KindIfaceReconfig),
		Callback:    handleIfaceReconfig(table),
	})
	reg.Register(grapi.Handler{
		Name:        "set_mtu",
		RequestType: RequestType(ModuleInfra, KindSetMTU),
		Callback:    handleSetMTU(table),
	})
	reg.Register(grapi.Handler{
		Name:        "set_promisc",
		RequestType: RequestType(ModuleInfra, KindSetPromisc),
		Callback:    handleSetFlag("set_promisc", table.SetPromisc),
	})
	reg.Register(grapi.Handler{
		Name:        "set_allmulti",
		RequestType: RequestType(ModuleInfra, KindSetAllmulti),
		Callback:    handleSetFlag("set_allmulti", table.SetAllmulti),
	})
	reg.Register(grapi.Handler{
		Name:        "set_up_down",
		RequestType: RequestType(ModuleInfra, KindSetUpDown),
		Callback:    handleSetUpDown(table, bus),
	})
	reg.Register(grapi.Handler{
		Name:        "set_eth_addr",
		RequestType: RequestType(ModuleInfra, KindSetEthAddr),
		Callback:    handleEthAddrWrite("set_eth_addr", table.SetEthAddr),
	})
	reg.Register(grapi.Handler{
		Name:        "get_eth_addr",
		RequestType: RequestType(ModuleInfra, KindGetEthAddr),
		Callback:    handleGetEthAddr(table),
	})
	reg.Register(grapi.Handler{
		Name:        "add_eth_addr",
		RequestType: RequestType(ModuleInfra, KindAddEthAddr),
		Callback:    handleEthAddrWrite("add_eth_addr", table.AddEthAddr),
	})
	reg.Register(grapi.Handler{
		Name:        "del_eth_addr",
		RequestType: RequestType(ModuleInfra, KindDelEthAddr),
		Callback:    handleEthAddrWrite("del_eth_addr", table.DelEthAddr),
	})
	reg.Register(grapi.Handler{
		Name:        "add_vlan",
		RequestType: RequestType(ModuleInfra, KindAddVLAN),
		Callback:    handleVLAN("add_vlan", table.AddVLAN),
	})
	reg.Register(grapi.Handler{
		Name:        "del_vlan",
		RequestType: RequestType(ModuleInfra, KindDelVLAN),
		Callback:    handleVLAN("del_vlan", table.DelVLAN),
	})
}

func encodeOK(v any) ([]byte, grerrno.Errno) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, grerrno.ENOMEM
	}
	return b, grerrno.OK
}

func handleIfaceAdd(table *grinfra.Table, bus *grevent.Bus) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req IfaceAddRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}

		existing, exErr := table.GetByName(req.Name)
		sameType := exErr == nil && existing.Type == req.Type
		proceed, err := gridem.Add(exErr == nil, sameType, req.ExistOK)
		if err != nil {
			return nil, grerrno.Of(err)
		}
		if !proceed {
			resp, status := encodeOK(IfaceAddResponse{ID: existing.ID})
			grmetrics.RequestsTotal.WithLabelValues("iface_add", strconv.Itoa(int(status.Syscall()))).Inc()
			return resp, status
		}

		iface, err := table.Create(context.Background(), req.Name, req.Type, &grinfra.Request{VRF: req.VRF, MTU: req.MTU})
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues("iface_add", strconv.Itoa(int(status.Syscall()))).Inc()
		if err != nil {
			log.Debug("iface_add failed", zap.String("name", req.Name), zap.Error(err))
			return nil, status
		}

		grmetrics.EventsPublishedTotal.WithLabelValues(topicIfaceAdded).Inc()
		bus.Publish(context.Background(), topicIfaceAdded, iface.ID)
		resp, _ := encodeOK(IfaceAddResponse{ID: iface.ID})
		return resp, grerrno.OK
	}
}

func handleIfaceGet(table *grinfra.Table) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req IfaceGetRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}
		iface, err := table.Get(req.ID)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues("iface_get", strconv.Itoa(int(status.Syscall()))).Inc()
		if err != nil {
			return nil, status
		}
		resp, s := encodeOK(iface)
		return resp, s
	}
}

func handleIfaceList(table *grinfra.Table) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req IfaceListRequest
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, grerrno.EILSEQ
			}
		}
		ifaces := table.List(req.VRF)
		grmetrics.RequestsTotal.WithLabelValues("iface_list", "0").Inc()
		resp, status := encodeOK(IfaceListResponse{Ifaces: ifaces})
		return resp, status
	}
}

func handleIfaceDel(table *grinfra.Table, bus *grevent.Bus) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req IfaceDelRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}

		err := table.DeleteIface(context.Background(), req.ID, req.MissingOK)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues("iface_del", strconv.Itoa(int(status.Syscall()))).Inc()
		if err != nil {
			return nil, status
		}
		bus.Publish(context.Background(), topicIfaceDeleted, req.ID)
		return nil, grerrno.OK
	}
}

func handleIfaceReconfig(table *grinfra.Table) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req IfaceReconfigRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}
		err := table.Reconfig(context.Background(), req.ID, req.Attrs, &req.Req)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues("iface_reconfig", strconv.Itoa(int(status.Syscall()))).Inc()
		return nil, status
	}
}

func handleSetMTU(table *grinfra.Table) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req SetMTURequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}
		err := table.SetMTU(req.ID, req.MTU)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues("set_mtu", strconv.Itoa(int(status.Syscall()))).Inc()
		return nil, status
	}
}

// handleSetFlag builds a handler for the boolean-toggle generic helpers
// (set_promisc, set_allmulti) that all share the same SetFlagRequest shape.
func handleSetFlag(name string, set func(grinfra.ID, bool) error) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req SetFlagRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}
		err := set(req.ID, req.Enabled)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues(name, strconv.Itoa(int(status.Syscall()))).Inc()
		return nil, status
	}
}

// handleSetUpDown additionally publishes IFACE_STATUS_UP/DOWN on success,
// the same event SubscribeBondEvents listens for to update StateRunning
// and re-run bond active-member selection — set_up_down is the one generic
// attribute helper whose effect is observable beyond the target interface
// itself.
func handleSetUpDown(table *grinfra.Table, bus *grevent.Bus) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req SetFlagRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}
		err := table.SetUpDown(req.ID, req.Enabled)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues("set_up_down", strconv.Itoa(int(status.Syscall()))).Inc()
		if err != nil {
			return nil, status
		}
		topic := grinfra.TopicIfaceStatusDown
		if req.Enabled {
			topic = grinfra.TopicIfaceStatusUp
		}
		iface, getErr := table.Get(req.ID)
		if getErr == nil {
			grmetrics.EventsPublishedTotal.WithLabelValues(topic).Inc()
			bus.Publish(context.Background(), topic, iface)
		}
		return nil, status
	}
}

func handleGetEthAddr(table *grinfra.Table) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req GetEthAddrRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}
		mac, err := table.GetEthAddr(req.ID)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues("get_eth_addr", strconv.Itoa(int(status.Syscall()))).Inc()
		if err != nil {
			return nil, status
		}
		resp, s := encodeOK(GetEthAddrResponse{EthAddr: mac})
		return resp, s
	}
}

// handleEthAddrWrite builds a handler for the MAC-address write helpers
// (set_eth_addr, add_eth_addr, del_eth_addr) that all share the same
// EthAddrRequest shape.
func handleEthAddrWrite(name string, set func(grinfra.ID, [6]byte) error) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req EthAddrRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}
		err := set(req.ID, req.EthAddr)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues(name, strconv.Itoa(int(status.Syscall()))).Inc()
		return nil, status
	}
}

// handleVLAN builds a handler for the VLAN-tag helpers (add_vlan, del_vlan)
// that share the same VLANRequest shape.
func handleVLAN(name string, set func(grinfra.ID, uint16) error) grapi.HandlerFunc {
	return func(payload []byte) ([]byte, grerrno.Errno) {
		var req VLANRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, grerrno.EILSEQ
		}
		err := set(req.ID, req.Tag)
		status := grerrno.Of(err)
		grmetrics.RequestsTotal.WithLabelValues(name, strconv.Itoa(int(status.Syscall()))).Inc()
		return nil, status
	}
}
