package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	loginsSucceeded     atomic.Int64
	loginsFailed        atomic.Int64
	sessionsExpired     atomic.Int64
	accessDenied        atomic.Int64
	rateLimited         atomic.Int64
	uploadsAccepted     atomic.Int64
	uploadsFailed       atomic.Int64
	uploadsRejected     atomic.Int64
	documentsDeleted    atomic.Int64
	approvalsSubmitted  atomic.Int64
	approvalsFailed     atomic.Int64
	activityPublished   atomic.Int64
	activityPublishErrs atomic.Int64
	activityConsumed    atomic.Int64
)

func ObserveLogin(ok bool) {
	if ok {
		loginsSucceeded.Add(1)
		return
	}
	loginsFailed.Add(1)
}

func ObserveSessionExpired() { sessionsExpired.Add(1) }

func ObserveAccessDenied() { accessDenied.Add(1) }

func ObserveRateLimited() { rateLimited.Add(1) }

// ObserveUploads records one batch: accepted by the backend, failed in flight,
// and rejected locally before any network call.
func ObserveUploads(accepted, failed, rejected int) {
	uploadsAccepted.Add(int64(accepted))
	uploadsFailed.Add(int64(failed))
	uploadsRejected.Add(int64(rejected))
}

func ObserveDocumentDeleted() { documentsDeleted.Add(1) }

func ObserveApproval(ok bool) {
	if ok {
		approvalsSubmitted.Add(1)
		return
	}
	approvalsFailed.Add(1)
}

func ObserveActivityPublish(err error) {
	if err != nil {
		activityPublishErrs.Add(1)
		return
	}
	activityPublished.Add(1)
}

func ObserveActivityConsumed() { activityConsumed.Add(1) }

type sample struct {
	name string
	help string
	kind string
	v    *atomic.Int64
}

var samples = []sample{
	{"casereview_logins_succeeded_total", "Successful dashboard logins.", "counter", &loginsSucceeded},
	{"casereview_logins_failed_total", "Rejected dashboard logins.", "counter", &loginsFailed},
	{"casereview_sessions_expired_total", "Sessions dropped because the token expired or was refused.", "counter", &sessionsExpired},
	{"casereview_access_denied_total", "Pages answered with Access Denied.", "counter", &accessDenied},
	{"casereview_rate_limited_total", "Requests rejected by the rate limiter.", "counter", &rateLimited},
	{"casereview_uploads_accepted_total", "Files accepted by the backend.", "counter", &uploadsAccepted},
	{"casereview_uploads_failed_total", "Files whose upload request failed.", "counter", &uploadsFailed},
	{"casereview_uploads_rejected_total", "Files rejected locally before upload.", "counter", &uploadsRejected},
	{"casereview_documents_deleted_total", "Documents deleted from the backend.", "counter", &documentsDeleted},
	{"casereview_approvals_submitted_total", "Approval decisions recorded.", "counter", &approvalsSubmitted},
	{"casereview_approvals_failed_total", "Approval submissions that failed.", "counter", &approvalsFailed},
	{"casereview_activity_published_total", "Activity events published to Kafka.", "counter", &activityPublished},
	{"casereview_activity_publish_errors_total", "Activity events that could not be published.", "counter", &activityPublishErrs},
	{"casereview_activity_consumed_total", "Activity events stored by the activity service.", "counter", &activityConsumed},
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, s := range samples {
		fmt.Fprintf(w, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", s.name, s.kind)
		fmt.Fprintf(w, "%s %d\n", s.name, s.v.Load())
	}
}

// Handler serves WritePrometheus.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WritePrometheus(w)
	})
}
