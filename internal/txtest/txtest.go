// Package txtest builds deterministic transaction fixtures for the
// aggregation engine tests. No fixture carries a real signature; the
// engine only inspects witness shape and the sighash byte.
package txtest

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Script returns a fake P2WPKH output script, unique per seed.
func Script(seed byte) []byte {
	script := make([]byte, 22)
	script[0] = txscript.OP_0
	script[1] = txscript.OP_DATA_20
	for i := 2; i < len(script); i++ {
		script[i] = seed
	}
	return script
}

// Witness returns a P2WPKH-shaped witness whose signature ends with
// SIGHASH_SINGLE | ANYONECANPAY.
func Witness() wire.TxWitness {
	return WitnessWithSighash(byte(txscript.SigHashSingle | txscript.SigHashAnyOneCanPay))
}

// WitnessWithSighash returns a two-item witness with the given sighash
// byte closing the signature item.
func WitnessWithSighash(sighash byte) wire.TxWitness {
	sig := bytes.Repeat([]byte{0x30}, 71)
	sig = append(sig, sighash)
	pubKey := bytes.Repeat([]byte{0x02}, 33)
	return wire.TxWitness{sig, pubKey}
}

// FundingTx creates a version-2 transaction with one output per script,
// each of the given value. It is the "prior transaction" fixtures spend.
func FundingTx(value int64, scripts ...[]byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff}, nil, nil))
	for _, script := range scripts {
		tx.AddTxOut(wire.NewTxOut(value, script))
	}
	return tx
}

// SpendTx builds a one-input / one-output version-2 transaction spending
// prev, paying value to script, with the given witness.
func SpendTx(prev wire.OutPoint, value int64, script []byte, witness wire.TxWitness) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&prev, nil, nil)
	in.Witness = witness
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(value, script))
	return tx
}

// SpendTxWithRate builds a spend of prev whose effective fee rate lands at
// (or a rounding hair under) rate sat/vB, given the prior output's value.
// The output value is adjusted after sizing; the value field is fixed
// width, so the adjustment never changes the virtual size.
func SpendTxWithRate(prev wire.OutPoint, priorValue int64, rate float64, script []byte) *wire.MsgTx {
	tx := SpendTx(prev, priorValue, script, Witness())
	vsize := mempool.GetTxVirtualSize(btcutil.NewTx(tx))
	fee := int64(rate * float64(vsize))
	tx.TxOut[0].Value = priorValue - fee
	return tx
}

// Hex serializes a transaction to the hex form clients submit.
func Hex(tx *wire.MsgTx) string {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf.Bytes())
}
