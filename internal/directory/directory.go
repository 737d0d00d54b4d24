// Package directory resolves player names against the player table and
// answers reachability from live sessions.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shopkeep.ai/internal/persistence/shopdb"
	"shopkeep.ai/internal/transfer/model"
	"shopkeep.ai/internal/transfer/negotiation"
)

type PlayerStore interface {
	LookupPlayer(ctx context.Context, name string) (shopdb.Player, error)
}

type Presence interface {
	IsReachable(id model.Identity) bool
}

type Directory struct {
	players  PlayerStore
	presence Presence
}

func New(players PlayerStore, presence Presence) *Directory {
	return &Directory{players: players, presence: presence}
}

func (d *Directory) Resolve(ctx context.Context, name string) (model.Actor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Actor{}, negotiation.ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return model.Actor{}, err
	}
	p, err := d.players.LookupPlayer(ctx, name)
	if errors.Is(err, shopdb.ErrNotFound) {
		return model.Actor{}, fmt.Errorf("player %q: %w", name, negotiation.ErrNotFound)
	}
	if err != nil {
		return model.Actor{}, fmt.Errorf("lookup player %q: %w", name, err)
	}
	return model.Actor{ID: p.ID, Name: p.Name}, nil
}

func (d *Directory) IsReachable(id model.Identity) bool {
	return d.presence != nil && d.presence.IsReachable(id)
}
