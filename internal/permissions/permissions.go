package permissions

import (
	"context"
	"strings"

	"shopkeep.ai/internal/transfer/model"
)

// Wildcard grants every capability when listed as a capability, and applies to
// every player when used as a grantee.
const Wildcard = "*"

// Static answers capability checks from a fixed grant table. Grantees are
// player uuids. Name grantees (case-insensitive) only count when the table is
// built WithNameGrants, since names are whatever the client claims.
type Static struct {
	byID   map[model.Identity]map[string]bool
	byName map[string]map[string]bool
	all    map[string]bool

	names bool
}

type Option func(*Static)

func WithNameGrants() Option { return func(s *Static) { s.names = true } }

func NewStatic(grants map[string][]string, opts ...Option) *Static {
	s := &Static{
		byID:   map[model.Identity]map[string]bool{},
		byName: map[string]map[string]bool{},
		all:    map[string]bool{},
	}
	for _, o := range opts {
		o(s)
	}
	for who, caps := range grants {
		who = strings.TrimSpace(who)
		set := s.setFor(who)
		if set == nil {
			continue
		}
		for _, c := range caps {
			if c = strings.TrimSpace(c); c != "" {
				set[c] = true
			}
		}
	}
	return s
}

func (s *Static) setFor(who string) map[string]bool {
	if who == Wildcard {
		return s.all
	}
	if id, err := model.ParseIdentity(who); err == nil {
		if s.byID[id] == nil {
			s.byID[id] = map[string]bool{}
		}
		return s.byID[id]
	}
	if !s.names {
		return nil
	}
	key := strings.ToLower(who)
	if s.byName[key] == nil {
		s.byName[key] = map[string]bool{}
	}
	return s.byName[key]
}

func (s *Static) HasPermission(_ context.Context, actor model.Actor, capability string) bool {
	if s == nil || capability == "" {
		return false
	}
	if allows(s.all, capability) || allows(s.byID[actor.ID], capability) {
		return true
	}
	return s.names && allows(s.byName[strings.ToLower(actor.Name)], capability)
}

func allows(set map[string]bool, capability string) bool {
	return set[capability] || set[Wildcard]
}
