// Package grmodule implements the control-plane module registry: a
// priority-ordered set of init/fini callbacks that packages register into
// via Register, the same way caddyserver/caddy's modules.go maintains a
// package-level registry that individual packages populate via
// RegisterModule, except ordered by numeric priority rather than by ID
// string, matching the original's br_register_module/modules_init. No
// package in this tree registers a module: the interface types, bond
// events, trace ring and API handlers are wired directly by cmd/groutd, so
// InitAll and FiniAll run over an empty registry there.
package grmodule

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grout-project/groutd/internal/grlog"
	"go.uber.org/zap"
)

var log = grlog.Named("module")

// InitFunc is run in ascending priority order during startup. Returning an
// error aborts the whole startup sequence (the original's modules_init
// calls abort() on the first failure).
type InitFunc func() error

// FiniFunc is run in ascending priority order during shutdown. Fini is
// best-effort: a failing Fini is logged and does not prevent the remaining
// modules from being torn down.
type FiniFunc func()

// Module is a single registered lifecycle participant.
type Module struct {
	Name     string
	InitPrio int
	FiniPrio int
	Init     InitFunc
	Fini     FiniFunc
}

var (
	mu      sync.Mutex
	modules = map[string]Module{}
)

// Register adds m to the registry. It panics on a duplicate name, mirroring
// the original's br_register_module ABORT on re-registration and
// caddyserver/caddy's RegisterModule panic-on-duplicate convention — both
// treat double registration as a programming error, not a runtime
// condition to recover from.
func Register(m Module) {
	if m.Name == "" {
		panic("grmodule: module registered with empty name")
	}
	if m.Init == nil {
		panic(fmt.Sprintf("grmodule: module %q registered with nil Init", m.Name))
	}

	mu.Lock()
	defer mu.Unlock()
	if _, dup := modules[m.Name]; dup {
		panic(fmt.Sprintf("grmodule: module %q already registered", m.Name))
	}
	modules[m.Name] = m
}

// Reset clears the registry. Test-only: production code never needs to
// unregister a module.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	modules = map[string]Module{}
}

func sortedByInitPrio() []Module {
	mu.Lock()
	defer mu.Unlock()
	list := make([]Module, 0, len(modules))
	for _, m := range modules {
		list = append(list, m)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].InitPrio != list[j].InitPrio {
			return list[i].InitPrio < list[j].InitPrio
		}
		return list[i].Name < list[j].Name
	})
	return list
}

func sortedByFiniPrio() []Module {
	mu.Lock()
	defer mu.Unlock()
	list := make([]Module, 0, len(modules))
	for _, m := range modules {
		list = append(list, m)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].FiniPrio != list[j].FiniPrio {
			return list[i].FiniPrio < list[j].FiniPrio
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// InitAll runs every registered module's Init in ascending InitPrio order.
// On the first error, it stops and returns that error without running
// remaining Inits, matching the original's abort-on-failure semantics; the
// caller is expected to treat this as fatal.
func InitAll() error {
	for _, m := range sortedByInitPrio() {
		log.Info("initializing module", zap.String("name", m.Name), zap.Int("prio", m.InitPrio))
		if err := m.Init(); err != nil {
			return fmt.Errorf("grmodule: init %q: %w", m.Name, err)
		}
	}
	return nil
}

// FiniAll runs every registered module's Fini in ascending FiniPrio order,
// best-effort: a module with a nil Fini is skipped, and Fini is never
// allowed to panic the whole shutdown sequence. This mirrors InitAll's
// ordering exactly — the original's module_fini_prio_order feeds the same
// ascending qsort used for init, and a module's author encodes any
// fini-before-init dependency by choosing FiniPrio values, not by the
// registry reversing them.
func FiniAll() {
	for _, m := range sortedByFiniPrio() {
		if m.Fini == nil {
			continue
		}
		log.Info("finalizing module", zap.String("name", m.Name), zap.Int("prio", m.FiniPrio))
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("module fini panicked", zap.String("name", m.Name), zap.Any("panic", r))
				}
			}()
			m.Fini()
		}()
	}
}

// Names returns the registered module names, for diagnostics and tests.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
