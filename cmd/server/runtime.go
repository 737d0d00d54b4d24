package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"shopkeep.ai/internal/command"
	"shopkeep.ai/internal/config"
	"shopkeep.ai/internal/directory"
	persistlog "shopkeep.ai/internal/persistence/log"
	"shopkeep.ai/internal/persistence/shopdb"
	"shopkeep.ai/internal/permissions"
	"shopkeep.ai/internal/policy"
	"shopkeep.ai/internal/text"
	"shopkeep.ai/internal/transfer/model"
	"shopkeep.ai/internal/transfer/mutator"
	"shopkeep.ai/internal/transfer/negotiation"
	"shopkeep.ai/internal/transfer/registry"
	"shopkeep.ai/internal/transport/ws"
)

type runtime struct {
	cfg      config.Config
	db       *shopdb.DB
	auditLog *persistlog.AuditLogger
	hub      *ws.Hub
	svc      *negotiation.Service
	wsSrv    *ws.Server
}

func newRuntime(cfg config.Config, db *shopdb.DB, auditLog *persistlog.AuditLogger, catalog *text.Catalog, logger *log.Logger) (*runtime, error) {
	hub := ws.NewHub(catalog)

	var sinks multiAuditSink
	if auditLog != nil {
		sinks = append(sinks, auditLog)
	}
	sinks = append(sinks, db)

	var svc *negotiation.Service
	reg := registry.New(cfg.NegotiationTTL(),
		registry.WithOnExpire(func(req model.Request) { svc.OnExpire(req) }),
	)
	mut := mutator.New(db,
		policy.Hooks(cfg.DenyUnlimitedTransfer, cfg.FrozenWorlds),
		log.New(os.Stdout, "[mutator] ", log.LstdFlags|log.Lmicroseconds),
	)
	svc, err := negotiation.New(negotiation.Config{
		Directory:          directory.New(db, hub),
		Store:              db,
		Mutator:            mut,
		Registry:           reg,
		Notifier:           hub,
		Permissions:        newPermissions(cfg.Permissions),
		Audit:              sinks,
		OverrideCapability: cfg.OverrideCapability,
		SweepEvery:         cfg.SweepInterval(),
		Logger:             log.New(os.Stdout, "[transfer] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		return nil, err
	}

	dispatcher := command.NewDispatcher(svc, hub, hub)
	wsSrv := ws.NewServer(hub, dispatcher, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds), ws.Options{
		MaxQueue:       cfg.MaxClientQueue,
		NegotiationTTL: cfg.NegotiationTTL(),
		Code:           command.Code,
		OnJoin: func(ctx context.Context, p model.Actor) error {
			return db.UpsertPlayer(ctx, shopdb.Player{ID: p.ID, Name: p.Name, LastSeen: time.Now()})
		},
	})
	if logger != nil {
		logger.Printf("policy: deny_unlimited_transfer=%v frozen_worlds=%v override_capability=%s",
			cfg.DenyUnlimitedTransfer, cfg.FrozenWorlds, cfg.OverrideCapability)
	}

	return &runtime{cfg: cfg, db: db, auditLog: auditLog, hub: hub, svc: svc, wsSrv: wsSrv}, nil
}

type adminState struct {
	NegotiationTTLSeconds int               `json:"negotiation_ttl_seconds"`
	Online                []string          `json:"online"`
	Negotiation           negotiation.Stats `json:"negotiation"`
	Hub                   ws.HubStats       `json:"hub"`
	AuditDB               shopdb.AuditStats `json:"audit_db"`
	AuditLogFailed        uint64            `json:"audit_log_failed"`
}

func (rt *runtime) state() adminState {
	st := adminState{
		NegotiationTTLSeconds: rt.cfg.NegotiationTTLSeconds,
		Online:                rt.hub.Online(),
		Negotiation:           rt.svc.Stats(),
		Hub:                   rt.hub.Stats(),
		AuditDB:               rt.db.AuditStats(),
	}
	if rt.auditLog != nil {
		st.AuditLogFailed = rt.auditLog.Failed()
	}
	return st
}

func (rt *runtime) routes(enableAdmin bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, rt)
	})
	if enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(rt.state())
		})
	}
	mux.HandleFunc("/v1/ws", rt.wsSrv.Handler())
	return mux
}

// multiAuditSink fans each outcome out to every configured sink.
type multiAuditSink []negotiation.AuditSink

func (m multiAuditSink) RecordOutcome(o model.Outcome) {
	for _, s := range m {
		s.RecordOutcome(o)
	}
}

func newPermissions(p config.Permissions) *permissions.Static {
	if p.AllowNameGrants {
		return permissions.NewStatic(p.Grants, permissions.WithNameGrants())
	}
	return permissions.NewStatic(p.Grants)
}
