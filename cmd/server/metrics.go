package main

import (
	"fmt"
	"io"
)

// writeMetrics renders a minimal Prometheus exposition.
func writeMetrics(w io.Writer, rt *runtime) {
	st := rt.svc.Stats()

	fmt.Fprintf(w, "# HELP shopkeep_transfer_outcomes_total Terminal transfer outcomes by kind.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_transfer_outcomes_total counter\n")
	fmt.Fprintf(w, "shopkeep_transfer_outcomes_total{kind=%q} %d\n", "COMMITTED", st.Committed)
	fmt.Fprintf(w, "shopkeep_transfer_outcomes_total{kind=%q} %d\n", "CANCELLED", st.Cancelled)
	fmt.Fprintf(w, "shopkeep_transfer_outcomes_total{kind=%q} %d\n", "EXPIRED", st.Expired)
	fmt.Fprintf(w, "shopkeep_transfer_outcomes_total{kind=%q} %d\n", "SUPERSEDED", st.Superseded)
	fmt.Fprintf(w, "shopkeep_transfer_outcomes_total{kind=%q} %d\n", "OVERRIDDEN", st.Overridden)

	fmt.Fprintf(w, "# HELP shopkeep_transfer_proposed_total Transfer requests installed.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_transfer_proposed_total counter\n")
	fmt.Fprintf(w, "shopkeep_transfer_proposed_total %d\n", st.Proposed)

	fmt.Fprintf(w, "# HELP shopkeep_transfer_no_pending_total Responses with nothing to respond to.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_transfer_no_pending_total counter\n")
	fmt.Fprintf(w, "shopkeep_transfer_no_pending_total %d\n", st.NoPending)

	fmt.Fprintf(w, "# HELP shopkeep_transfer_assets_total Shops processed by committed transfers.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_transfer_assets_total counter\n")
	fmt.Fprintf(w, "shopkeep_transfer_assets_total{result=%q} %d\n", "moved", st.AssetsMoved)
	fmt.Fprintf(w, "shopkeep_transfer_assets_total{result=%q} %d\n", "kept", st.AssetsKept)

	fmt.Fprintf(w, "# HELP shopkeep_transfer_pending Requests awaiting a response.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_transfer_pending gauge\n")
	fmt.Fprintf(w, "shopkeep_transfer_pending %d\n", st.Pending)

	fmt.Fprintf(w, "# HELP shopkeep_commit_queue_depth Commit batches waiting for the commit loop.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_commit_queue_depth gauge\n")
	fmt.Fprintf(w, "shopkeep_commit_queue_depth %d\n", st.CommitQueued)

	hs := rt.hub.Stats()
	cmds, rejected := rt.wsSrv.Counters()
	fmt.Fprintf(w, "# HELP shopkeep_ws_sessions Connected player sessions.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_ws_sessions gauge\n")
	fmt.Fprintf(w, "shopkeep_ws_sessions %d\n", hs.Sessions)

	fmt.Fprintf(w, "# HELP shopkeep_ws_notices_total Player notices by delivery result.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_ws_notices_total counter\n")
	fmt.Fprintf(w, "shopkeep_ws_notices_total{result=%q} %d\n", "sent", hs.NoticesSent)
	fmt.Fprintf(w, "shopkeep_ws_notices_total{result=%q} %d\n", "dropped", hs.NoticesDropped)

	fmt.Fprintf(w, "# HELP shopkeep_ws_commands_total Commands dispatched.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_ws_commands_total counter\n")
	fmt.Fprintf(w, "shopkeep_ws_commands_total %d\n", cmds)

	fmt.Fprintf(w, "# HELP shopkeep_ws_rejected_total Frames rejected before dispatch.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_ws_rejected_total counter\n")
	fmt.Fprintf(w, "shopkeep_ws_rejected_total %d\n", rejected)

	as := rt.db.AuditStats()
	fmt.Fprintf(w, "# HELP shopkeep_audit_db_queue_depth Outcomes waiting for the sqlite writer.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_audit_db_queue_depth gauge\n")
	fmt.Fprintf(w, "shopkeep_audit_db_queue_depth %d\n", as.QueueDepth)

	fmt.Fprintf(w, "# HELP shopkeep_audit_db_rows_total Outcome rows by write result.\n")
	fmt.Fprintf(w, "# TYPE shopkeep_audit_db_rows_total counter\n")
	fmt.Fprintf(w, "shopkeep_audit_db_rows_total{result=%q} %d\n", "written", as.Written)
	fmt.Fprintf(w, "shopkeep_audit_db_rows_total{result=%q} %d\n", "dropped", as.Dropped)

	if rt.auditLog != nil {
		fmt.Fprintf(w, "# HELP shopkeep_audit_log_failed_total Outcomes the JSONL audit log failed to write.\n")
		fmt.Fprintf(w, "# TYPE shopkeep_audit_log_failed_total counter\n")
		fmt.Fprintf(w, "shopkeep_audit_log_failed_total %d\n", rt.auditLog.Failed())
	}
}
