package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"shopkeep.ai/internal/protocol"
	"shopkeep.ai/internal/text"
	"shopkeep.ai/internal/transfer/model"
)

var (
	ErrOffline   = errors.New("player offline")
	ErrQueueFull = errors.New("client queue full")
)

type session struct {
	id    string
	actor model.Actor
	out   chan []byte

	kicked   chan struct{}
	kickOnce sync.Once
}

func (s *session) kick() { s.kickOnce.Do(func() { close(s.kicked) }) }

// Hub tracks the live session of each player. A player has at most one
// session; a newer login replaces the older one.
type Hub struct {
	catalog *text.Catalog

	mu       sync.RWMutex
	sessions map[model.Identity]*session

	noticesSent    atomic.Uint64
	noticesDropped atomic.Uint64
}

type HubStats struct {
	Sessions       int    `json:"sessions"`
	NoticesSent    uint64 `json:"notices_sent"`
	NoticesDropped uint64 `json:"notices_dropped"`
}

func NewHub(catalog *text.Catalog) *Hub {
	if catalog == nil {
		catalog = text.New(nil)
	}
	return &Hub{catalog: catalog, sessions: map[model.Identity]*session{}}
}

func (h *Hub) attach(s *session) {
	h.mu.Lock()
	old := h.sessions[s.actor.ID]
	h.sessions[s.actor.ID] = s
	h.mu.Unlock()
	if old != nil {
		old.kick()
	}
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	if h.sessions[s.actor.ID] == s {
		delete(h.sessions, s.actor.ID)
	}
	h.mu.Unlock()
}

func (h *Hub) IsReachable(id model.Identity) bool {
	h.mu.RLock()
	_, ok := h.sessions[id]
	h.mu.RUnlock()
	return ok
}

// Online returns the display names of connected players, sorted.
func (h *Hub) Online() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s.actor.Name)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Send renders key for the player's session and queues it without blocking.
func (h *Hub) Send(_ context.Context, to model.Actor, key string, args ...any) error {
	h.mu.RLock()
	s := h.sessions[to.ID]
	h.mu.RUnlock()
	if s == nil {
		return ErrOffline
	}
	b, err := json.Marshal(protocol.NoticeMsg{
		Type:            protocol.TypeNotice,
		ProtocolVersion: protocol.Version,
		Key:             key,
		Text:            h.catalog.Render(key, args...),
		Args:            text.Args(args...),
	})
	if err != nil {
		return err
	}
	if !enqueue(s, b) {
		h.noticesDropped.Add(1)
		return ErrQueueFull
	}
	h.noticesSent.Add(1)
	return nil
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.sessions)
	h.mu.RUnlock()
	return HubStats{
		Sessions:       n,
		NoticesSent:    h.noticesSent.Load(),
		NoticesDropped: h.noticesDropped.Load(),
	}
}

func enqueue(s *session, b []byte) bool {
	select {
	case s.out <- b:
		return true
	default:
		return false
	}
}
