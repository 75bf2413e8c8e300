// Package oracle - Mock ChainOracle for testing
package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MockOracle is a deterministic in-memory ChainOracle for tests.
//
// Transactions registered with AddTx form the known chain. ListUnspent
// scans their outputs by script, excluding outpoints marked spent with
// MarkSpent.
type MockOracle struct {
	mu sync.Mutex

	txs       map[chainhash.Hash]*wire.MsgTx
	spent     map[wire.OutPoint]bool
	feeRate   float64
	errors    map[string]error // method -> forced error
	callCount map[string]int

	// Broadcasts records every transaction passed to Broadcast, in order.
	Broadcasts []*wire.MsgTx
}

// NewMockOracle creates an empty mock with a 5 sat/vB fee estimate.
func NewMockOracle() *MockOracle {
	return &MockOracle{
		txs:       make(map[chainhash.Hash]*wire.MsgTx),
		spent:     make(map[wire.OutPoint]bool),
		feeRate:   5.0,
		errors:    make(map[string]error),
		callCount: make(map[string]int),
	}
}

// AddTx registers a transaction as known to the chain.
func (m *MockOracle) AddTx(tx *wire.MsgTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.TxHash()] = tx
}

// MarkSpent marks a single outpoint as spent so ListUnspent omits it.
func (m *MockOracle) MarkSpent(op wire.OutPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spent[op] = true
}

// SetFeeRate configures the next-block fee estimate in sat/vB.
func (m *MockOracle) SetFeeRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeRate = rate
}

// SetError forces the given method ("get_tx", "list_unspent",
// "estimate_fee", "broadcast") to fail. A nil error clears it.
func (m *MockOracle) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, method)
		return
	}
	m.errors[method] = err
}

// CallCount returns how many times the given method was invoked.
func (m *MockOracle) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[method]
}

func (m *MockOracle) forced(method string) error {
	m.callCount[method]++
	if err, ok := m.errors[method]; ok {
		return &Error{Op: method, Err: err}
	}
	return nil
}

// GetTx returns a registered transaction or ErrTxNotFound.
func (m *MockOracle) GetTx(ctx context.Context, txid *chainhash.Hash) (*wire.MsgTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.forced("get_tx"); err != nil {
		return nil, err
	}
	tx, ok := m.txs[*txid]
	if !ok {
		return nil, &Error{Op: "get_tx", Err: fmt.Errorf("%w: %s", ErrTxNotFound, txid)}
	}
	return tx, nil
}

// ListUnspent scans registered transactions for unspent outputs paying the
// given script.
func (m *MockOracle) ListUnspent(ctx context.Context, pkScript []byte) ([]Unspent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.forced("list_unspent"); err != nil {
		return nil, err
	}

	var unspent []Unspent
	for hash, tx := range m.txs {
		for idx, out := range tx.TxOut {
			if !bytes.Equal(out.PkScript, pkScript) {
				continue
			}
			op := wire.OutPoint{Hash: hash, Index: uint32(idx)}
			if m.spent[op] {
				continue
			}
			unspent = append(unspent, Unspent{
				Hash:  hash,
				Index: uint32(idx),
				Value: out.Value,
			})
		}
	}
	return unspent, nil
}

// EstimateFeeRate returns the configured estimate.
func (m *MockOracle) EstimateFeeRate(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.forced("estimate_fee"); err != nil {
		return 0, err
	}
	return m.feeRate, nil
}

// Broadcast records the transaction, registers it as known and marks its
// inputs spent, mirroring what a real broadcast does to the chain view.
func (m *MockOracle) Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.forced("broadcast"); err != nil {
		return nil, err
	}

	m.Broadcasts = append(m.Broadcasts, tx)
	m.txs[tx.TxHash()] = tx
	for _, in := range tx.TxIn {
		m.spent[in.PreviousOutPoint] = true
	}
	hash := tx.TxHash()
	return &hash, nil
}

// IsErrTxNotFound reports whether err wraps ErrTxNotFound.
func IsErrTxNotFound(err error) bool {
	return errors.Is(err, ErrTxNotFound)
}
