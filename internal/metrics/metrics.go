package metrics

import (
	"sync/atomic"
)

// Metrics tracks operational metrics.
type Metrics struct {
	ReviewRequests uint64 `json:"review_requests"`
	ReviewActions  uint64 `json:"review_actions"`
	CommentsPosted uint64 `json:"comments_posted"`
	PlatformErrors uint64 `json:"platform_errors"`
	RepoSyncs      uint64 `json:"repo_syncs"`
	SyncFailures   uint64 `json:"sync_failures"`
}

var global = &Metrics{}

// ReviewRequested increments the count of review lookups served.
func ReviewRequested() { atomic.AddUint64(&global.ReviewRequests, 1) }

// ReviewActionSubmitted increments the count of approve/request_changes actions.
func ReviewActionSubmitted() { atomic.AddUint64(&global.ReviewActions, 1) }

// CommentPosted increments the count of comments posted to a platform.
func CommentPosted() { atomic.AddUint64(&global.CommentsPosted, 1) }

// PlatformError increments the count of failed platform calls.
func PlatformError() { atomic.AddUint64(&global.PlatformErrors, 1) }

// RepoSynced increments the count of successful repo syncs.
func RepoSynced() { atomic.AddUint64(&global.RepoSyncs, 1) }

// SyncFailed increments the count of failed repo syncs.
func SyncFailed() { atomic.AddUint64(&global.SyncFailures, 1) }

// Get returns a snapshot of the current metrics.
func Get() Metrics {
	return Metrics{
		ReviewRequests: atomic.LoadUint64(&global.ReviewRequests),
		ReviewActions:  atomic.LoadUint64(&global.ReviewActions),
		CommentsPosted: atomic.LoadUint64(&global.CommentsPosted),
		PlatformErrors: atomic.LoadUint64(&global.PlatformErrors),
		RepoSyncs:      atomic.LoadUint64(&global.RepoSyncs),
		SyncFailures:   atomic.LoadUint64(&global.SyncFailures),
	}
}

// Reset resets all metrics to zero (useful for testing).
func Reset() {
	atomic.StoreUint64(&global.ReviewRequests, 0)
	atomic.StoreUint64(&global.ReviewActions, 0)
	atomic.StoreUint64(&global.CommentsPosted, 0)
	atomic.StoreUint64(&global.PlatformErrors, 0)
	atomic.StoreUint64(&global.RepoSyncs, 0)
	atomic.StoreUint64(&global.SyncFailures, 0)
}
