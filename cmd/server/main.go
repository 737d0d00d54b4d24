package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"shopkeep.ai/internal/config"
	persistlog "shopkeep.ai/internal/persistence/log"
	"shopkeep.ai/internal/persistence/shopdb"
	"shopkeep.ai/internal/text"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		configPath  = flag.String("config", "./configs/shopkeep.yaml", "path to shopkeep.yaml (missing file: defaults)")
		dbPath      = flag.String("db", "", "sqlite path (default: <data>/shopkeep.sqlite)")
		disableLogs = flag.Bool("disable_audit_log", false, "disable the compressed JSONL transfer audit log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cp := strings.TrimSpace(*configPath)
	if cp != "" {
		if _, err := os.Stat(cp); os.IsNotExist(err) {
			logger.Printf("config not found (%s); using defaults", cp)
			cp = ""
		}
	}
	cfg, err := config.LoadEnv(cp, os.Getenv)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	catalog := text.New(cfg.Messages)
	if cfg.MessagesPath != "" {
		catalog, err = text.Load(cfg.MessagesPath, cfg.Messages)
		if err != nil {
			logger.Fatalf("load messages: %v", err)
		}
	}

	dbp := strings.TrimSpace(*dbPath)
	if dbp == "" {
		dbp = filepath.Join(*dataDir, "shopkeep.sqlite")
	}
	db, err := shopdb.Open(dbp)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var auditLog *persistlog.AuditLogger
	if !*disableLogs {
		auditLog = persistlog.NewAuditLogger(*dataDir)
		defer auditLog.Close()
	}

	rt, err := newRuntime(cfg, db, auditLog, catalog, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := rt.svc.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("negotiation stopped: %v", err)
		}
	}()

	enableAdminHTTP := envBool("SK_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	if !enableAdminHTTP {
		logger.Printf("admin endpoints disabled (SK_ENABLE_ADMIN_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           rt.routes(enableAdminHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (negotiation ttl=%ds)", *addr, cfg.NegotiationTTLSeconds)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
