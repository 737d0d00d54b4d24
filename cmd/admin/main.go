package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "shopkeep.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "players":
			playersCmd(os.Args[2:])
			return
		case "shops":
			shopsCmd(os.Args[2:])
			return
		case "seed":
			seedCmd(os.Args[2:])
			return
		case "transfers":
			transfersCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin players|shops|seed|transfers|audit|state [flags]")
	os.Exit(2)
}

// auditCmd prints the compressed JSONL transfer log, optionally filtered.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "", "outcome kind filter (COMMITTED, CANCELLED, EXPIRED, SUPERSEDED, OVERRIDDEN)")
	player := fs.String("player", "", "initiator/recipient name filter (case-insensitive)")
	limit := fs.Int("limit", 0, "print only the last N matching entries (0 = all)")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadAuditDir(filepath.Join(*dataDir, "audit"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		if len(entries) == 0 {
			os.Exit(1)
		}
	}
	out := filterAudit(entries, *kind, *player)
	if *limit > 0 && len(out) > *limit {
		out = out[len(out)-*limit:]
	}
	for _, e := range out {
		printJSON(e)
	}
}

func filterAudit(entries []persistlog.AuditEntry, kind, player string) []persistlog.AuditEntry {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	player = strings.ToLower(strings.TrimSpace(player))
	var out []persistlog.AuditEntry
	for _, e := range entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		if player != "" && strings.ToLower(e.Initiator.Name) != player && strings.ToLower(e.Recipient.Name) != player {
			continue
		}
		out = append(out, e)
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
