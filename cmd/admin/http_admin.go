package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// serverState mirrors the server's /admin/v1/state body. Unknown sections
// are kept in Raw so -field can reach them.
type serverState struct {
	NegotiationTTLSeconds int      `json:"negotiation_ttl_seconds"`
	Online                []string `json:"online"`
	Negotiation           struct {
		Pending      int    `json:"pending"`
		CommitQueued int    `json:"commit_queued"`
		Committed    uint64 `json:"committed"`
		Cancelled    uint64 `json:"cancelled"`
		Expired      uint64 `json:"expired"`
		Overridden   uint64 `json:"overridden"`
	} `json:"negotiation"`
	AuditDB struct {
		QueueDepth int    `json:"queue_depth"`
		Dropped    uint64 `json:"dropped"`
	} `json:"audit_db"`
	AuditLogFailed uint64 `json:"audit_log_failed"`

	Raw map[string]any `json:"-"`
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	field := fs.String("field", "", "print one dotted field, e.g. negotiation.pending")
	raw := fs.Bool("json", false, "print the full state as json")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := fetchState(ctx, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	switch {
	case *field != "":
		v, err := lookupField(st.Raw, *field)
		if err != nil {
			fmt.Fprintln(os.Stderr, "state:", err)
			os.Exit(1)
		}
		printJSON(v)
	case *raw:
		printJSON(st.Raw)
	default:
		writeSummary(os.Stdout, st)
	}
}

func fetchState(ctx context.Context, baseURL string) (serverState, error) {
	var st serverState
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/state"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return st, err
	}
	if resp.StatusCode/100 != 2 {
		return st, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal(b, &st.Raw); err != nil {
		return st, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

func lookupField(root map[string]any, path string) (any, error) {
	var cur any = root
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: not an object at %q", path, part)
		}
		if cur, ok = m[part]; !ok {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("%s: no field %q (have %s)", path, part, strings.Join(keys, ", "))
		}
	}
	return cur, nil
}

func writeSummary(w io.Writer, st serverState) {
	n := st.Negotiation
	fmt.Fprintf(w, "online      %d %s\n", len(st.Online), strings.Join(st.Online, ","))
	fmt.Fprintf(w, "pending     %d (ttl %ds, %d commits queued)\n", n.Pending, st.NegotiationTTLSeconds, n.CommitQueued)
	fmt.Fprintf(w, "outcomes    committed=%d cancelled=%d expired=%d overridden=%d\n", n.Committed, n.Cancelled, n.Expired, n.Overridden)
	fmt.Fprintf(w, "audit       db_queue=%d db_dropped=%d log_failed=%d\n", st.AuditDB.QueueDepth, st.AuditDB.Dropped, st.AuditLogFailed)
}
