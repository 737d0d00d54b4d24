// Package policy holds the server-side veto hooks consulted before each shop
// changes hands.
package policy

import (
	"context"
	"strings"

	"shopkeep.ai/internal/transfer/mutator"
)

// UnlimitedGuard keeps server-owned unlimited shops where they are.
type UnlimitedGuard struct{}

func (UnlimitedGuard) PreTransfer(_ context.Context, ev mutator.PreTransferEvent) bool {
	return ev.Asset != nil && ev.Asset.Unlimited
}

// FrozenWorlds vetoes shops located in any of the named worlds.
type FrozenWorlds map[string]bool

func NewFrozenWorlds(worlds []string) FrozenWorlds {
	f := FrozenWorlds{}
	for _, w := range worlds {
		if w = strings.TrimSpace(w); w != "" {
			f[strings.ToLower(w)] = true
		}
	}
	return f
}

func (f FrozenWorlds) PreTransfer(_ context.Context, ev mutator.PreTransferEvent) bool {
	if len(f) == 0 || ev.Asset == nil {
		return false
	}
	return f[strings.ToLower(ev.Asset.World)]
}

// Hooks builds the configured veto chain.
func Hooks(denyUnlimited bool, frozenWorlds []string) mutator.VetoHook {
	var hooks []mutator.VetoHook
	if denyUnlimited {
		hooks = append(hooks, UnlimitedGuard{})
	}
	if len(frozenWorlds) > 0 {
		hooks = append(hooks, NewFrozenWorlds(frozenWorlds))
	}
	return mutator.Chain(hooks...)
}
