package registry

import (
	"context"
	"sync"
	"time"

	"shopkeep.ai/internal/transfer/model"
)

const DefaultTTL = 60 * time.Second

type entry struct {
	req      model.Request
	deadline time.Time
}

// Registry holds at most one pending request per recipient. Every mutation
// goes through Propose/Consume/Sweep, each a single critical section.
type Registry struct {
	ttl      time.Duration
	now      func() time.Time
	onExpire func(model.Request)

	mu      sync.Mutex
	pending map[model.Identity]entry
}

type Option func(*Registry)

// WithOnExpire registers fn to observe every entry dropped for age, whichever
// call noticed it. fn runs outside the registry lock.
func WithOnExpire(fn func(model.Request)) Option {
	return func(r *Registry) { r.onExpire = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		ttl:     ttl,
		now:     time.Now,
		pending: map[model.Identity]entry{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) TTL() time.Duration { return r.ttl }

// Propose installs req for recipient, replacing any live entry. The replaced
// request is returned so callers can record it; nobody is notified.
func (r *Registry) Propose(recipient model.Identity, req model.Request) (prev model.Request, superseded bool) {
	created := req.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	var expired *model.Request
	r.mu.Lock()
	if old, ok := r.pending[recipient]; ok {
		if r.expiredLocked(old) {
			expired = &old.req
		} else {
			prev, superseded = old.req, true
		}
	}
	r.pending[recipient] = entry{req: req, deadline: created.Add(r.ttl)}
	r.mu.Unlock()

	if expired != nil {
		r.expire(*expired)
	}
	return prev, superseded
}

// Consume removes and returns the live entry for recipient. Expired entries
// are dropped and reported absent whether or not a sweep has run.
func (r *Registry) Consume(recipient model.Identity) (model.Request, bool) {
	r.mu.Lock()
	e, ok := r.pending[recipient]
	if !ok {
		r.mu.Unlock()
		return model.Request{}, false
	}
	delete(r.pending, recipient)
	stale := r.expiredLocked(e)
	r.mu.Unlock()

	if stale {
		r.expire(e.req)
		return model.Request{}, false
	}
	return e.req, true
}

// Sweep evicts expired entries and returns them in no particular order.
func (r *Registry) Sweep() []model.Request {
	var out []model.Request
	r.mu.Lock()
	for k, e := range r.pending {
		if r.expiredLocked(e) {
			delete(r.pending, k)
			out = append(out, e.req)
		}
	}
	r.mu.Unlock()

	for _, req := range out {
		r.expire(req)
	}
	return out
}

// Len counts stored entries, including expired ones not yet swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = r.ttl / 2
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

func (r *Registry) expire(req model.Request) {
	if r.onExpire != nil {
		r.onExpire(req)
	}
}

func (r *Registry) expiredLocked(e entry) bool {
	return !r.now().Before(e.deadline)
}
