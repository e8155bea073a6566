package splunk

import (
	"fmt"
	"time"
)

// notablePipeline is the Enterprise Security macro pipeline that yields
// closed, owned notable events. No leading pipe; it is appended to a
// `search earliest=... latest=...` prefix so the export API accepts it.
const notablePipeline = "`notable` " +
	"| `get_current_status` " +
	"| search search_name!=*HSDE* search_name!=*ffreactor* status_group=\"Closed\" " +
	"| `get_owner` " +
	"| where owner != \"unassigned\" " +
	"| rename owner_realname AS \"analyst\", search_name as alert_title " +
	"| `get_notable_disposition` " +
	"| eval `get_event_id_meval`, rule_id=event_id " +
	"| eventstats first(_time) as created_time, max(review_time) as closed_time by rule_id " +
	"| rename annotations.* as annotations_* " +
	"| eval open_duration=round(closed_time - created_time, 0) " +
	"| eval escalation_status=if(disposition_label=\"True Positive - Escalated\",\"Escalated\",\"Not Escalated\") " +
	"| table * " +
	"| sort - closed_time " +
	"| dedup event_id"

// buildNotableQuery returns the complete search string for one review
// window. Bounds are epoch seconds; the window is half-open on the
// caller's side, Splunk treats both as inclusive which is tolerated
// because the pipeline dedups by event_id.
func buildNotableQuery(earliest, latest time.Time) string {
	return fmt.Sprintf("search earliest=%d latest=%d %s", earliest.Unix(), latest.Unix(), notablePipeline)
}

// buildAuditQuery returns the incident review timeline for one notable
// event, oldest entry first.
func buildAuditQuery(ruleID string) string {
	return fmt.Sprintf(
		"| inputlookup incident_review_lookup where rule_id=%q "+
			"| sort time "+
			"| table time, reviewer, status_label, comment", ruleID)
}
