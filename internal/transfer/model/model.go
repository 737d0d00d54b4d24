package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is the stable reference to a player. Display names are not identity.
type Identity = uuid.UUID

var ErrSelfTransfer = errors.New("self transfer")

func ParseIdentity(s string) (Identity, error) { return uuid.Parse(strings.TrimSpace(s)) }

// OfflineIdentity derives a stable identity from a display name for players
// that never presented one. Names are case-insensitive.
func OfflineIdentity(name string) Identity {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("shopkeep:"+strings.ToLower(strings.TrimSpace(name))))
}

type Actor struct {
	ID   Identity
	Name string
}

func (a Actor) Same(o Actor) bool { return a.ID == o.ID }

func (a Actor) String() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return a.ID.String()
}

// Asset is a player shop. Owner is the only field this service mutates.
type Asset struct {
	ID        int64
	Owner     Identity
	World     string
	X, Y, Z   int
	Item      string
	Unlimited bool
}

func (a *Asset) String() string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("shop#%d(%s@%s:%d,%d,%d)", a.ID, a.Item, a.World, a.X, a.Y, a.Z)
}

// Request is a pending ownership transfer. The asset list is captured at
// proposal time and never re-queried.
type Request struct {
	ID        uuid.UUID
	Initiator Actor
	Recipient Actor
	CreatedAt time.Time

	assets []*Asset
}

func NewRequest(initiator, recipient Actor, assets []*Asset, now time.Time) (Request, error) {
	if initiator.Same(recipient) {
		return Request{}, ErrSelfTransfer
	}
	snap := make([]*Asset, len(assets))
	copy(snap, assets)
	return Request{
		ID:        uuid.New(),
		Initiator: initiator,
		Recipient: recipient,
		CreatedAt: now,
		assets:    snap,
	}, nil
}

// Assets returns the snapshot in proposal order. The returned slice is a copy.
func (r Request) Assets() []*Asset {
	out := make([]*Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

func (r Request) Len() int { return len(r.assets) }

func (r Request) IsZero() bool { return r.ID == uuid.Nil }
