package grinfra

import (
	"context"
	"fmt"
	"strings"

	"github.com/aryann/difflib"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("groutd/grinfra")

// Create adds a new interface of the given type to t, invoking that type's
// Init with SetAll, matching the original's bond_init/port_init pattern of
// reconfig(iface, IFACE_SET_ALL, ...).
func (t *Table) Create(ctx context.Context, name string, typ Type, req *Request) (*Iface, error) {
	ctx, span := tracer.Start(ctx, "iface.create")
	defer span.End()

	ops, err := opsFor(typ)
	if err != nil {
		return nil, err
	}

	iface := &Iface{Name: name, Type: typ, VRF: req.VRF, MTU: req.MTU, Flags: req.Flags}
	if err := t.Add(iface); err != nil {
		return nil, err
	}

	if ops.Init != nil {
		if err := ops.Init(iface, req); err != nil {
			_ = t.Delete(iface.ID, true)
			return nil, err
		}
	}
	_ = ctx
	return iface, nil
}

// Reconfig applies attrs from req onto an existing interface via its
// type's vtable, logging an attribute-level diff at DEBUG the way
// caddyserver-caddy diffs config reloads (adapted here to per-field diffing
// of a reconfig request instead of whole-config-document diffing).
func (t *Table) Reconfig(ctx context.Context, id ID, attrs SetAttrs, req *Request) error {
	ctx, span := tracer.Start(ctx, "iface.reconfig")
	defer span.End()

	iface, err := t.Get(id)
	if err != nil {
		return err
	}

	ops, err := opsFor(iface.Type)
	if err != nil {
		return err
	}
	if ops.Reconfig == nil {
		return unsupported(iface.Type, "reconfig")
	}

	before := describeRequest(iface, attrs)
	if err := ops.Reconfig(iface, attrs, req); err != nil {
		return err
	}
	after := describeRequest(iface, attrs)
	logReconfigDiff(iface, before, after)

	if attrs&SetVRF != 0 {
		iface.VRF = req.VRF
	}
	if attrs&SetFlags != 0 {
		iface.Flags = req.Flags
	}
	_ = ctx
	return nil
}

// DeleteIface removes iface from the table, running its type's Fini first.
// missingOK makes a delete of an already-absent ID idempotent (§7,
// exist_ok/missing_ok).
func (t *Table) DeleteIface(ctx context.Context, id ID, missingOK bool) error {
	ctx, span := tracer.Start(ctx, "iface.delete")
	defer span.End()

	iface, err := t.Get(id)
	if err != nil {
		if missingOK {
			return nil
		}
		return err
	}

	ops, opsErr := opsFor(iface.Type)
	if opsErr == nil && ops.Fini != nil {
		if err := ops.Fini(iface); err != nil {
			return err
		}
	}
	_ = ctx
	return t.Delete(id, missingOK)
}

func describeRequest(iface *Iface, attrs SetAttrs) []string {
	var lines []string
	if attrs&SetVRF != 0 {
		lines = append(lines, fmt.Sprintf("vrf: %d", iface.VRF))
	}
	if attrs&SetMTU != 0 {
		lines = append(lines, fmt.Sprintf("mtu: %d", iface.MTU))
	}
	if attrs&SetFlags != 0 {
		lines = append(lines, fmt.Sprintf("flags: %v", iface.Flags))
	}
	return lines
}

func logReconfigDiff(iface *Iface, before, after []string) {
	diff := difflib.Diff(before, after)
	var changed bool
	for _, d := range diff {
		if d.Delta != difflib.Common {
			changed = true
			break
		}
	}
	if !changed {
		return
	}
	var b strings.Builder
	for _, d := range diff {
		switch d.Delta {
		case difflib.Common:
			fmt.Fprintf(&b, "  %s\n", d.Payload)
		case difflib.LeftOnly:
			fmt.Fprintf(&b, "- %s\n", d.Payload)
		case difflib.RightOnly:
			fmt.Fprintf(&b, "+ %s\n", d.Payload)
		}
	}
	log.Debug("interface reconfigured", zap.String("name", iface.Name), zap.String("diff", b.String()))
}
