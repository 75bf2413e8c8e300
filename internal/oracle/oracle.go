// Package oracle provides a read-mostly facade over a Bitcoin chain index.
//
// The aggregation engine never talks to the network directly: every chain
// read and the final broadcast go through the ChainOracle interface so the
// engine can run against an in-memory fake in tests.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrTxNotFound is returned by GetTx when the endpoint does not know the
// requested transaction.
var ErrTxNotFound = errors.New("transaction not found")

// Unspent describes one unspent output returned by ListUnspent.
type Unspent struct {
	Hash   chainhash.Hash // transaction the output belongs to
	Index  uint32         // output index within that transaction
	Value  int64          // satoshis
	Height int32          // confirmation height, 0 for mempool
}

// ChainOracle is the contract between the aggregation engine and the chain.
//
// Contract:
// - GetTx MUST return ErrTxNotFound (possibly wrapped) for unknown txids
// - ListUnspent takes a raw output script, not an address
// - EstimateFeeRate targets next-block confirmation and returns sat/vB
// - Broadcast returns the txid accepted by the network
type ChainOracle interface {
	GetTx(ctx context.Context, txid *chainhash.Hash) (*wire.MsgTx, error)
	ListUnspent(ctx context.Context, pkScript []byte) ([]Unspent, error)
	EstimateFeeRate(ctx context.Context) (float64, error)
	Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error)
}

// Error wraps a failed oracle round trip with the operation that failed.
type Error struct {
	Op  string // "get_tx", "list_unspent", "estimate_fee", "broadcast"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
