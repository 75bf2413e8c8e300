// Package txvalidation enforces the admission rules for client transactions.
//
// A transaction is admitted only if it parses, belongs to the configured
// network, keeps its inputs and outputs pair-aligned, pays above dust and
// above the minimum fee rate, is signed SIGHASH_SINGLE | ANYONECANPAY over
// a P2WPKH witness, and spends outputs that are still unspent.
package txvalidation

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/yourusername/grouphug/internal/oracle"
)

// minFeeRate is the floor every admitted transaction must clear, in sat/vB.
const minFeeRate = 1.01

// sighashSingleAnyoneCanPay is the only signature hash type accepted.
const sighashSingleAnyoneCanPay = byte(txscript.SigHashSingle | txscript.SigHashAnyOneCanPay)

// RuleError is a validation failure whose message is sent verbatim to the
// client as a one-line rejection.
type RuleError struct {
	msg string
}

func (e *RuleError) Error() string {
	return e.msg
}

// NewRuleError creates a RuleError with a client-facing message.
func NewRuleError(msg string) *RuleError {
	return &RuleError{msg: msg}
}

// Result carries what admission needs from a validated transaction.
type Result struct {
	Tx      *wire.MsgTx
	FeeRate float64 // effective fee rate in sat/vB
}

// Validator applies the rule set using a chain oracle for prior-output
// lookups.
type Validator struct {
	oracle      oracle.ChainOracle
	networkName string
	dustLimit   int64
}

// New creates a Validator for the named network with the given dust limit.
func New(chain oracle.ChainOracle, networkName string, dustLimit int64) *Validator {
	return &Validator{
		oracle:      chain,
		networkName: networkName,
		dustLimit:   dustLimit,
	}
}

// Validate applies the rules in order; the first failure wins. A non-nil
// error is always a *RuleError. Oracle failures degrade to the rejection
// message of the rule that needed the oracle.
func (v *Validator) Validate(ctx context.Context, rawHex string) (*Result, *RuleError) {
	// Rule 1: decode and deserialize.
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, NewRuleError("Error decoding hex")
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, NewRuleError("Error deserializing transaction")
	}
	if len(tx.TxIn) == 0 || len(tx.TxOut) == 0 {
		return nil, NewRuleError("Error deserializing transaction")
	}

	// Prior transactions are needed by three rules; fetch each at most once.
	priorTxs := make(map[chainhash.Hash]*wire.MsgTx)

	// Rule 2: the first input's prior tx must exist on our network.
	if _, err := v.priorTx(ctx, priorTxs, &tx.TxIn[0].PreviousOutPoint.Hash); err != nil {
		return nil, NewRuleError(fmt.Sprintf("The tx you provided is not from %s network", v.networkName))
	}

	// Rule 3: symmetric counts keep input[i] aligned with output[i] when
	// pairs are concatenated into the group transaction.
	if len(tx.TxIn) != len(tx.TxOut) {
		return nil, NewRuleError(fmt.Sprintf(
			"Number of inputs and outputs must be equal. Inputs = %d | Outputs = %d",
			len(tx.TxIn), len(tx.TxOut)))
	}

	// Rule 4: absolute locktime must be inactive.
	if tx.LockTime != 0 {
		return nil, NewRuleError("Absolute locktime is not 0")
	}

	// Rule 5: every output must clear the dust limit.
	for _, out := range tx.TxOut {
		if out.Value < v.dustLimit {
			return nil, NewRuleError(fmt.Sprintf("The transaction value is under the dust limit %d", v.dustLimit))
		}
	}

	// Rule 6: version must be exactly 2.
	if tx.Version != 2 {
		return nil, NewRuleError("Tx version is not 2")
	}

	// Rule 7: effective fee rate over all inputs.
	feeRate, ruleErr := v.effectiveFeeRate(ctx, priorTxs, &tx)
	if ruleErr != nil {
		return nil, ruleErr
	}
	if feeRate <= minFeeRate {
		return nil, NewRuleError(fmt.Sprintf("Fee below 1 sat/vB. Fee rate found %.2fsat/vB", feeRate))
	}

	// Rule 8: every input must be a P2WPKH spend signed
	// SIGHASH_SINGLE | ANYONECANPAY.
	for _, in := range tx.TxIn {
		if !witnessIsSingleAnyoneCanPay(in.Witness) {
			return nil, NewRuleError("Wrong sighash used")
		}
	}

	// Rule 9: every prior output must still be unspent.
	for _, in := range tx.TxIn {
		spendable, err := v.priorOutputUnspent(ctx, priorTxs, in.PreviousOutPoint)
		if err != nil || !spendable {
			return nil, NewRuleError("Double spending detected")
		}
	}

	return &Result{Tx: &tx, FeeRate: feeRate}, nil
}

// priorTx fetches a prior transaction through the oracle, memoizing per
// validation pass.
func (v *Validator) priorTx(ctx context.Context, cache map[chainhash.Hash]*wire.MsgTx, txid *chainhash.Hash) (*wire.MsgTx, error) {
	if tx, ok := cache[*txid]; ok {
		return tx, nil
	}
	tx, err := v.oracle.GetTx(ctx, txid)
	if err != nil {
		return nil, err
	}
	cache[*txid] = tx
	return tx, nil
}

// effectiveFeeRate sums prior-output minus own-output values over all
// inputs and divides by the virtual size.
func (v *Validator) effectiveFeeRate(ctx context.Context, cache map[chainhash.Hash]*wire.MsgTx, tx *wire.MsgTx) (float64, *RuleError) {
	errLoad := NewRuleError("There's an error loading the previous utxo value")

	var fee int64
	for i, in := range tx.TxIn {
		prior, err := v.priorTx(ctx, cache, &in.PreviousOutPoint.Hash)
		if err != nil {
			return 0, errLoad
		}
		vout := in.PreviousOutPoint.Index
		if int(vout) >= len(prior.TxOut) {
			return 0, errLoad
		}
		priorValue := prior.TxOut[vout].Value
		if priorValue == 0 {
			return 0, errLoad
		}
		fee += priorValue - tx.TxOut[i].Value
	}

	vsize := mempool.GetTxVirtualSize(btcutil.NewTx(tx))
	if vsize <= 0 {
		return 0, errLoad
	}
	return float64(fee) / float64(vsize), nil
}

// priorOutputUnspent re-checks the chain for the outpoint's output script
// and reports whether any unspent output still pays it.
func (v *Validator) priorOutputUnspent(ctx context.Context, cache map[chainhash.Hash]*wire.MsgTx, op wire.OutPoint) (bool, error) {
	prior, err := v.priorTx(ctx, cache, &op.Hash)
	if err != nil {
		return false, err
	}
	if int(op.Index) >= len(prior.TxOut) {
		return false, nil
	}
	unspent, err := v.oracle.ListUnspent(ctx, prior.TxOut[op.Index].PkScript)
	if err != nil {
		return false, err
	}
	return len(unspent) > 0, nil
}

// witnessIsSingleAnyoneCanPay checks the P2WPKH witness shape: exactly a
// signature and a pubkey, with the signature's sighash byte set to 0x83.
func witnessIsSingleAnyoneCanPay(witness wire.TxWitness) bool {
	if len(witness) != 2 {
		return false
	}
	sig := witness[0]
	if len(sig) == 0 {
		return false
	}
	return sig[len(sig)-1] == sighashSingleAnyoneCanPay
}
