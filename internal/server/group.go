// Package server implements the aggregation engine: fee-rate-bucketed
// groups of input/output pairs, the registry that owns them, the periodic
// closure sweeper and the client-facing line-protocol frontend.
package server

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/yourusername/grouphug/internal/metrics"
	"github.com/yourusername/grouphug/internal/oracle"
)

// pair is the unit of membership inside a group: one transaction input and
// the same-index output it was signed against.
type pair struct {
	in  *wire.TxIn
	out *wire.TxOut
}

// Group is one fee-rate bucket. Pair order is insertion order and assembly
// preserves it; every SIGHASH_SINGLE | ANYONECANPAY signature stays valid
// only because input[i] keeps facing output[i].
//
// A Group is mutated only while the owning Registry holds its lock.
type Group struct {
	feeRate   float64 // quantized bucket key
	createdAt int64   // unix seconds
	maxSize   int
	pairs     []pair

	log     *zap.Logger
	metrics *metrics.Metrics
}

func newGroup(feeRate float64, maxSize int, log *zap.Logger, m *metrics.Metrics) *Group {
	return &Group{
		feeRate:   feeRate,
		createdAt: time.Now().Unix(),
		maxSize:   maxSize,
		log:       log,
		metrics:   m,
	}
}

// containsInput reports whether any pair spends the given prior output.
func (g *Group) containsInput(op wire.OutPoint) bool {
	for _, p := range g.pairs {
		if p.in.PreviousOutPoint == op {
			return true
		}
	}
	return false
}

// size returns the current pair count.
func (g *Group) size() int {
	return len(g.pairs)
}

// addTx appends one pair per input index of an already-validated
// transaction. Symmetric input/output counts are guaranteed by validation.
// When the group reaches capacity it closes itself; the return value tells
// the registry whether to evict.
func (g *Group) addTx(ctx context.Context, chain oracle.ChainOracle, tx *wire.MsgTx) bool {
	for i, in := range tx.TxIn {
		g.pairs = append(g.pairs, pair{in: in, out: tx.TxOut[i]})
	}
	if len(g.pairs) >= g.maxSize {
		return g.close(ctx, chain)
	}
	return false
}

// close finalizes and broadcasts the group transaction. It returns true
// only when the broadcast succeeded and the registry must evict the group.
//
// Any pair whose prior output was spent since admission is removed and the
// closure aborted without broadcasting; the smaller group stays in the
// registry and waits for its next trigger. An oracle failure aborts the
// closure with the group untouched.
func (g *Group) close(ctx context.Context, chain oracle.ChainOracle) bool {
	// Step 1: stale-UTXO revalidation.
	var stale []int
	for i, p := range g.pairs {
		prior, err := chain.GetTx(ctx, &p.in.PreviousOutPoint.Hash)
		if err != nil {
			g.log.Warn("closure aborted, prior tx lookup failed",
				zap.Float64("fee_rate", g.feeRate), zap.Error(err))
			return false
		}
		vout := p.in.PreviousOutPoint.Index
		if int(vout) >= len(prior.TxOut) {
			stale = append(stale, i)
			continue
		}
		unspent, err := chain.ListUnspent(ctx, prior.TxOut[vout].PkScript)
		if err != nil {
			g.log.Warn("closure aborted, listunspent failed",
				zap.Float64("fee_rate", g.feeRate), zap.Error(err))
			return false
		}
		if len(unspent) == 0 {
			stale = append(stale, i)
		}
	}
	if len(stale) > 0 {
		for i := len(stale) - 1; i >= 0; i-- {
			g.pairs = append(g.pairs[:stale[i]], g.pairs[stale[i]+1:]...)
		}
		g.log.Info("removed spent pairs, closure postponed",
			zap.Float64("fee_rate", g.feeRate),
			zap.Int("removed", len(stale)),
			zap.Int("remaining", len(g.pairs)))
		return false
	}

	// Step 2: assembly. input[i] faces output[i] in insertion order.
	groupTx := g.assemble()

	// Step 3: broadcast.
	txid, err := chain.Broadcast(ctx, groupTx)
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordBroadcastFailure()
		}
		g.log.Warn("group broadcast failed, will retry on next trigger",
			zap.Float64("fee_rate", g.feeRate), zap.Error(err))
		return false
	}

	g.log.Info("group closed",
		zap.Float64("fee_rate", g.feeRate),
		zap.Int("pairs", len(g.pairs)),
		zap.String("txid", txid.String()))
	return true
}

// assemble builds the group transaction from live pairs. Every closure
// recomputes it, so a failed broadcast never leaves stale state behind.
func (g *Group) assemble() *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	for _, p := range g.pairs {
		tx.AddTxIn(p.in)
		tx.AddTxOut(p.out)
	}
	return tx
}
