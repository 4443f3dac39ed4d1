package braider

import (
	"fmt"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/puzpuzpuz/xsync/v3"
)

// Ledger tracks which clusters have already produced a braid within
// their recency window, enforcing spec §4.6's "braiding the same
// cluster twice within the same recency window is forbidden; the
// engine keys this on the cluster identity."
type Ledger struct {
	braidedAt *xsync.MapOf[string, time.Time]
}

// NewLedger builds an empty, concurrency-safe Ledger.
func NewLedger() *Ledger {
	return &Ledger{braidedAt: xsync.NewMapOf[string, time.Time]()}
}

func clusterKey(id domain.ClusterID) string {
	return fmt.Sprintf("%s|%s|%s|%d", id.Kind, id.View, id.Bucket, id.WindowStart.Unix())
}

// AlreadyBraided reports whether id was braided within window of now.
func (l *Ledger) AlreadyBraided(id domain.ClusterID, window time.Duration, now time.Time) bool {
	t, ok := l.braidedAt.Load(clusterKey(id))
	if !ok {
		return false
	}
	return now.Sub(t) < window
}

// MarkBraided records id as braided at now.
func (l *Ledger) MarkBraided(id domain.ClusterID, now time.Time) {
	l.braidedAt.Store(clusterKey(id), now)
}
