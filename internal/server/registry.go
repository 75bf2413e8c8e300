// Package server - Group registry and admission path
package server

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/grouphug/internal/config"
	"github.com/yourusername/grouphug/internal/metrics"
	"github.com/yourusername/grouphug/internal/oracle"
	"github.com/yourusername/grouphug/internal/txvalidation"
)

// driftMargin is how far above the market rate a bucket may sit before the
// drift sweep closes it, in sat/vB.
const driftMargin = 2.0

// GroupInfo is one row of the observability snapshot.
type GroupInfo struct {
	FeeRate   float64
	Size      int
	MaxSize   int
	Timestamp int64
}

// Registry owns every live group. A single mutex serializes all mutations,
// including the oracle calls made during closure; the cross-group
// double-spend scan therefore always sees a consistent view.
type Registry struct {
	mu     sync.Mutex
	groups []*Group

	validator   *txvalidation.Validator
	chain       oracle.ChainOracle
	bucketWidth float64
	maxSize     int
	maxTime     int64

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry wired to its collaborators.
func NewRegistry(validator *txvalidation.Validator, chain oracle.ChainOracle, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		validator:   validator,
		chain:       chain,
		bucketWidth: cfg.Fee.Range,
		maxSize:     cfg.Group.MaxSize,
		maxTime:     cfg.Group.MaxTime,
		log:         log.Named("registry"),
		metrics:     m,
	}
}

// Quantize maps a raw fee rate to its bucket key. The key is computed once
// at admission and stored; lookups always compare stored keys.
func (r *Registry) Quantize(feeRate float64) float64 {
	return math.Floor(feeRate/r.bucketWidth) * r.bucketWidth
}

// Admit runs the full admission path for one client transaction. A nil
// return means the transaction joined a group (which may have closed and
// been evicted in the same step). Any non-nil error carries the one-line
// rejection message for the client.
func (r *Registry) Admit(ctx context.Context, rawHex string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Step 1: validation, including all oracle reads.
	result, ruleErr := r.validator.Validate(ctx, rawHex)
	if ruleErr != nil {
		if r.metrics != nil {
			r.metrics.RecordAdmission(false)
		}
		return ruleErr
	}

	// Step 2: cross-group double-spend scan. Deliberately O(groups x
	// pairs x inputs); the configured caps keep it small.
	for _, in := range result.Tx.TxIn {
		for _, g := range r.groups {
			if g.containsInput(in.PreviousOutPoint) {
				if r.metrics != nil {
					r.metrics.RecordAdmission(false)
				}
				return txvalidation.NewRuleError("Transaction input is already in a group")
			}
		}
	}

	// Steps 3-4: bucket key, find or create.
	key := r.Quantize(result.FeeRate)
	g := r.findGroup(key)
	if g == nil {
		g = r.createGroup(key)
	}

	if r.metrics != nil {
		r.metrics.RecordAdmission(true)
	}

	// Step 5: add, closing and evicting when the bucket fills.
	if closed := g.addTx(ctx, r.chain, result.Tx); closed {
		r.remove(g)
		if r.metrics != nil {
			r.metrics.RecordGroupClosed()
		}
	}
	return nil
}

// SweepByTime closes and evicts every group older than the configured
// maximum age at the given unix time.
func (r *Registry) SweepByTime(ctx context.Context, now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.snapshotLocked() {
		if g.createdAt+r.maxTime > now {
			continue
		}
		if g.close(ctx, r.chain) {
			r.remove(g)
			if r.metrics != nil {
				r.metrics.RecordGroupClosed()
			}
		}
	}
}

// SweepByFeeDrift closes and evicts every group whose bucket rate exceeds
// the market estimate by more than the drift margin. Below-market groups
// keep filling until they time out.
func (r *Registry) SweepByFeeDrift(ctx context.Context, marketRate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.snapshotLocked() {
		if g.feeRate <= marketRate+driftMargin {
			continue
		}
		if g.close(ctx, r.chain) {
			r.remove(g)
			if r.metrics != nil {
				r.metrics.RecordGroupClosed()
			}
		}
	}
}

// Snapshot returns one GroupInfo per live group, for observability.
func (r *Registry) Snapshot() []GroupInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]GroupInfo, 0, len(r.groups))
	for _, g := range r.groups {
		infos = append(infos, GroupInfo{
			FeeRate:   g.feeRate,
			Size:      g.size(),
			MaxSize:   g.maxSize,
			Timestamp: g.createdAt,
		})
	}
	return infos
}

// findGroup returns the group with the stored bucket key, or nil.
func (r *Registry) findGroup(key float64) *Group {
	for _, g := range r.groups {
		if g.feeRate == key {
			return g
		}
	}
	return nil
}

// createGroup adds an empty bucket for the key. Two groups sharing a key
// would break assembly accounting, so that is treated as programmer error.
func (r *Registry) createGroup(key float64) *Group {
	if r.findGroup(key) != nil {
		panic(fmt.Sprintf("registry: duplicate group for fee rate %g", key))
	}
	g := newGroup(key, r.maxSize, r.log, r.metrics)
	r.groups = append(r.groups, g)
	if r.metrics != nil {
		r.metrics.RecordGroupCreated()
	}
	r.log.Info("group created", zap.Float64("fee_rate", key))
	return g
}

// remove evicts a group. Closed groups never serve traffic again.
func (r *Registry) remove(target *Group) {
	for i, g := range r.groups {
		if g == target {
			r.groups = append(r.groups[:i], r.groups[i+1:]...)
			return
		}
	}
}

// snapshotLocked copies the group slice so sweeps can evict while ranging.
func (r *Registry) snapshotLocked() []*Group {
	return append([]*Group(nil), r.groups...)
}
