package negotiation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"shopkeep.ai/internal/transfer/model"
	"shopkeep.ai/internal/transfer/mutator"
	"shopkeep.ai/internal/transfer/registry"
)

type Decision int

const (
	Accept Decision = iota + 1
	Reject
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

type Config struct {
	Directory   Directory
	Store       OwnershipStore
	Mutator     *mutator.Mutator
	Registry    *registry.Registry
	Notifier    Notifier
	Permissions Permissions
	Audit       AuditSink // optional

	OverrideCapability string
	SweepEvery         time.Duration

	Now    func() time.Time
	Logger *log.Logger
}

type OverrideResult struct {
	From    model.Actor
	To      model.Actor
	Moved   int
	Skipped int
}

type Stats struct {
	Proposed     uint64 `json:"proposed"`
	Committed    uint64 `json:"committed"`
	Cancelled    uint64 `json:"cancelled"`
	Superseded   uint64 `json:"superseded"`
	Expired      uint64 `json:"expired"`
	Overridden   uint64 `json:"overridden"`
	AssetsMoved  uint64 `json:"assets_moved"`
	AssetsKept   uint64 `json:"assets_kept"`
	NoPending    uint64 `json:"no_pending"`
	Pending      int    `json:"pending"`
	CommitQueued int    `json:"commit_queued"`
}

// commitJob carries a consumed request to the commit loop. finish records and
// notifies on the loop, so the outcome no longer depends on the submitter.
type commitJob struct {
	ctx    context.Context
	assets []*model.Asset
	to     model.Actor
	finish func(mutator.Tally) model.Outcome
	reply  chan model.Outcome
}

// Service runs the consent and override workflows. Commits queue until Run
// starts and run inline once it has returned.
type Service struct {
	dir      Directory
	store    OwnershipStore
	mut      *mutator.Mutator
	reg      *registry.Registry
	notifier Notifier
	perms    Permissions
	audit    AuditSink

	overrideCap string
	sweepEvery  time.Duration
	now         func() time.Time
	log         *log.Logger

	commits chan commitJob
	batchMu sync.Mutex // one batch at a time, loop or inline
	loopMu  sync.RWMutex
	stopped bool

	proposed    atomic.Uint64
	committed   atomic.Uint64
	cancelled   atomic.Uint64
	superseded  atomic.Uint64
	expired     atomic.Uint64
	overridden  atomic.Uint64
	assetsMoved atomic.Uint64
	assetsKept  atomic.Uint64
	noPending   atomic.Uint64
}

func New(cfg Config) (*Service, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("negotiation: missing directory")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("negotiation: missing ownership store")
	}
	if cfg.Mutator == nil {
		return nil, fmt.Errorf("negotiation: missing mutator")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("negotiation: missing registry")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("negotiation: missing notifier")
	}
	s := &Service{
		dir:         cfg.Directory,
		store:       cfg.Store,
		mut:         cfg.Mutator,
		reg:         cfg.Registry,
		notifier:    cfg.Notifier,
		perms:       cfg.Permissions,
		audit:       cfg.Audit,
		overrideCap: cfg.OverrideCapability,
		sweepEvery:  cfg.SweepEvery,
		now:         cfg.Now,
		log:         cfg.Logger,
		commits:     make(chan commitJob, 64),
	}
	if s.overrideCap == "" {
		s.overrideCap = DefaultOverrideCapability
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	return s, nil
}

// Run processes commits one batch at a time and sweeps the registry until ctx
// is done. Batches still queued at that point are drained before Run returns,
// and later commits run on the caller's goroutine.
func (s *Service) Run(ctx context.Context) error {
	go s.reg.Run(ctx, s.sweepEvery)
	for {
		select {
		case <-ctx.Done():
			s.stop()
			return ctx.Err()
		case job := <-s.commits:
			s.apply(job)
		}
	}
}

// stop flips the service to inline commits. Submitters hold loopMu.RLock
// across their send, so the loop keeps reading until the write lock is won and
// nothing can land in the channel after the final drain.
func (s *Service) stop() {
	locked := make(chan struct{})
	go func() {
		s.loopMu.Lock()
		s.stopped = true
		s.loopMu.Unlock()
		close(locked)
	}()
	for {
		select {
		case job := <-s.commits:
			s.apply(job)
		case <-locked:
			for {
				select {
				case job := <-s.commits:
					s.apply(job)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) apply(job commitJob) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	t := s.mut.TransferAll(job.ctx, job.assets, job.to)
	s.assetsMoved.Add(uint64(t.Applied))
	s.assetsKept.Add(uint64(t.Skipped))
	job.reply <- job.finish(t)
}

// OnExpire records a request the registry dropped for age. Wire it with
// registry.WithOnExpire. Nobody is notified.
func (s *Service) OnExpire(req model.Request) {
	s.expired.Add(1)
	s.log.Printf("transfer %s expired: %s -> %s", req.ID, req.Initiator, req.Recipient)
	s.record(model.Outcome{Kind: model.OutcomeExpired, Request: req, At: s.now()})
}

// Propose installs a transfer of every shop initiator currently owns, pending
// the consent of recipientName.
func (s *Service) Propose(ctx context.Context, initiator model.Actor, recipientName string) (model.Request, error) {
	recipient, err := s.dir.Resolve(ctx, recipientName)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Request{}, ctxErr
		}
		if !errors.Is(err, ErrNotFound) {
			s.log.Printf("resolve %q: %v", recipientName, err)
		}
		s.notify(ctx, initiator, KeyUnknownPlayer)
		return model.Request{}, &IdentityError{Side: SideRecipient, Name: recipientName, Err: err}
	}
	if !s.dir.IsReachable(recipient.ID) {
		s.notify(ctx, initiator, KeyPlayerOffline, recipientName)
		return model.Request{}, ErrRecipientUnreachable
	}
	if initiator.Same(recipient) {
		s.notify(ctx, initiator, KeyNoSelf, recipientName)
		return model.Request{}, ErrSelfTransfer
	}

	assets, err := s.store.ListOwnedAssets(ctx, initiator.ID)
	if err != nil {
		return model.Request{}, fmt.Errorf("list shops of %s: %w", initiator, err)
	}
	req, err := model.NewRequest(initiator, recipient, assets, s.now())
	if err != nil {
		return model.Request{}, err
	}
	if prev, ok := s.reg.Propose(recipient.ID, req); ok {
		s.superseded.Add(1)
		s.log.Printf("transfer %s superseded by %s for %s", prev.ID, req.ID, recipient)
		s.record(model.Outcome{Kind: model.OutcomeSuperseded, Request: prev, At: req.CreatedAt})
	}
	s.proposed.Add(1)

	s.notify(ctx, initiator, KeySent, recipientName)
	s.notify(ctx, recipient, KeyRequest, initiator.Name)
	s.notify(ctx, recipient, KeyAsk, int(s.reg.TTL()/time.Second))
	return req, nil
}

// Respond consumes the request pending for responder. Never proposed, already
// consumed and expired all look the same: ErrNoPendingOperation.
func (s *Service) Respond(ctx context.Context, responder model.Actor, d Decision) (model.Outcome, error) {
	if d != Accept && d != Reject {
		return model.Outcome{}, fmt.Errorf("respond: unsupported %s", d)
	}
	req, ok := s.reg.Consume(responder.ID)
	if !ok {
		s.noPending.Add(1)
		s.notify(ctx, responder, KeyNoPendingOperation)
		return model.Outcome{}, ErrNoPendingOperation
	}

	if d == Reject {
		s.cancelled.Add(1)
		out := model.Outcome{Kind: model.OutcomeCancelled, Request: req, By: responder, At: s.now()}
		s.record(out)
		s.notify(ctx, req.Initiator, KeyRejectedFromSide, req.Recipient.Name)
		s.notify(ctx, req.Recipient, KeyRejectedToSide, req.Initiator.Name)
		return out, nil
	}

	// The request is consumed: from here on the caller's ctx only bounds how
	// long Respond waits, never whether the commit happens.
	bg := context.WithoutCancel(ctx)
	out, err := s.commit(ctx, req.Assets(), req.Recipient, func(t mutator.Tally) model.Outcome {
		out := model.Outcome{
			Kind:    model.OutcomeCommitted,
			Request: req,
			By:      responder,
			At:      s.now(),
			Applied: t.Applied,
			Skipped: t.Skipped,
		}
		s.record(out)
		s.notify(bg, req.Initiator, KeyAcceptedFromSide, req.Recipient.Name)
		s.notify(bg, req.Recipient, KeyAcceptedToSide, req.Initiator.Name)
		s.committed.Add(1)
		return out
	})
	if err != nil {
		s.log.Printf("transfer %s accepted, caller left before commit finished: %v", req.ID, err)
		return model.Outcome{}, err
	}
	return out, nil
}

// OverrideTransfer moves every shop of fromName to toName without consent.
// Both players must be known and online.
func (s *Service) OverrideTransfer(ctx context.Context, actor model.Actor, fromName, toName string) (OverrideResult, error) {
	if s.perms == nil || !s.perms.HasPermission(ctx, actor, s.overrideCap) {
		s.notify(ctx, actor, KeyNoPermission)
		return OverrideResult{}, ErrPermissionDenied
	}

	var (
		g              errgroup.Group
		from, to       model.Actor
		fromErr, toErr error
	)
	g.Go(func() error {
		from, fromErr = s.resolveLive(ctx, SideFrom, fromName)
		return fromErr
	})
	g.Go(func() error {
		to, toErr = s.resolveLive(ctx, SideTo, toName)
		return toErr
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return OverrideResult{}, ctxErr
		}
		// Report the from side first when both fail.
		if fromErr != nil {
			err = fromErr
		} else {
			err = toErr
		}
		var ie *IdentityError
		if errors.As(err, &ie) {
			s.notify(ctx, actor, KeyUnknownPlayer, ie.Side)
		}
		return OverrideResult{}, err
	}
	if from.Same(to) {
		s.notify(ctx, actor, KeyNoSelf, toName)
		return OverrideResult{}, ErrSelfTransfer
	}

	assets, err := s.store.ListOwnedAssets(ctx, from.ID)
	if err != nil {
		return OverrideResult{}, fmt.Errorf("list shops of %s: %w", from, err)
	}
	req, err := model.NewRequest(from, to, assets, s.now())
	if err != nil {
		return OverrideResult{}, err
	}
	bg := context.WithoutCancel(ctx)
	out, err := s.commit(ctx, req.Assets(), to, func(t mutator.Tally) model.Outcome {
		out := model.Outcome{
			Kind:    model.OutcomeOverridden,
			Request: req,
			By:      actor,
			At:      s.now(),
			Applied: t.Applied,
			Skipped: t.Skipped,
		}
		s.record(out)
		s.notify(bg, actor, KeySuccessOther, t.Applied, fromName, toName)
		s.overridden.Add(1)
		return out
	})
	if err != nil {
		return OverrideResult{}, err
	}
	return OverrideResult{From: from, To: to, Moved: out.Applied, Skipped: out.Skipped}, nil
}

func (s *Service) Stats() Stats {
	return Stats{
		Proposed:     s.proposed.Load(),
		Committed:    s.committed.Load(),
		Cancelled:    s.cancelled.Load(),
		Superseded:   s.superseded.Load(),
		Expired:      s.expired.Load(),
		Overridden:   s.overridden.Load(),
		AssetsMoved:  s.assetsMoved.Load(),
		AssetsKept:   s.assetsKept.Load(),
		NoPending:    s.noPending.Load(),
		Pending:      s.reg.Len(),
		CommitQueued: len(s.commits),
	}
}

func (s *Service) resolveLive(ctx context.Context, side, name string) (model.Actor, error) {
	a, err := s.dir.Resolve(ctx, name)
	if err != nil {
		return model.Actor{}, &IdentityError{Side: side, Name: name, Err: err}
	}
	if !s.dir.IsReachable(a.ID) {
		return model.Actor{}, &IdentityError{Side: side, Name: name, Err: ErrRecipientUnreachable}
	}
	return a, nil
}

// commit always submits the batch. A cancelled ctx makes commit return early
// but the batch still runs and its outcome is still recorded.
func (s *Service) commit(ctx context.Context, assets []*model.Asset, to model.Actor, finish func(mutator.Tally) model.Outcome) (model.Outcome, error) {
	job := commitJob{
		ctx:    context.WithoutCancel(ctx),
		assets: assets,
		to:     to,
		finish: finish,
		reply:  make(chan model.Outcome, 1),
	}
	s.loopMu.RLock()
	if s.stopped {
		s.loopMu.RUnlock()
		s.apply(job)
		return <-job.reply, nil
	}
	s.commits <- job
	s.loopMu.RUnlock()

	select {
	case out := <-job.reply:
		return out, nil
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
}

func (s *Service) notify(ctx context.Context, to model.Actor, key string, args ...any) {
	if err := s.notifier.Send(ctx, to, key, args...); err != nil {
		s.log.Printf("notify %s %s: %v", to, key, err)
	}
}

func (s *Service) record(o model.Outcome) {
	if s.audit != nil {
		s.audit.RecordOutcome(o)
	}
}
