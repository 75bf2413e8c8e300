// Package metrics - process counters with Prometheus-compatible export
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Metrics tracks server activity counters.
//
// Thread-safe implementation using sync.Mutex for concurrent access.
type Metrics struct {
	mu sync.Mutex

	txAdmitted        int64
	txRejected        int64
	groupsCreated     int64
	groupsClosed      int64
	broadcastFailures int64

	// Per-method oracle call counts
	oracleCalls map[string]int64
}

// New creates an empty Metrics set.
func New() *Metrics {
	return &Metrics{
		oracleCalls: make(map[string]int64),
	}
}

// RecordAdmission records the outcome of one admission attempt.
func (m *Metrics) RecordAdmission(admitted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admitted {
		m.txAdmitted++
	} else {
		m.txRejected++
	}
}

// RecordGroupCreated counts a new fee-rate bucket.
func (m *Metrics) RecordGroupCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupsCreated++
}

// RecordGroupClosed counts a successful close-and-broadcast.
func (m *Metrics) RecordGroupClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupsClosed++
}

// RecordBroadcastFailure counts a closure whose group broadcast failed.
// Closures aborted earlier, during stale-UTXO revalidation, are not counted.
func (m *Metrics) RecordBroadcastFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastFailures++
}

// RecordOracleCall counts one oracle round trip for the given method.
func (m *Metrics) RecordOracleCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oracleCalls[method]++
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := map[string]int64{
		"tx_admitted":        m.txAdmitted,
		"tx_rejected":        m.txRejected,
		"groups_created":     m.groupsCreated,
		"groups_closed":      m.groupsClosed,
		"broadcast_failures": m.broadcastFailures,
	}
	for method, count := range m.oracleCalls {
		snap["oracle_calls_"+method] = count
	}
	return snap
}

// Export returns the counters in Prometheus text exposition format.
func (m *Metrics) Export() string {
	snap := m.Snapshot()

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("grouphug_%s %d\n", name, snap[name]))
	}
	return sb.String()
}
