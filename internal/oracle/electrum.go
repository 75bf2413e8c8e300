// Package oracle - Electrum-backed ChainOracle implementation
package oracle

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/checksum0/go-electrum/electrum"

	"github.com/yourusername/grouphug/internal/metrics"
)

// callTimeout bounds every Electrum round trip so a dead endpoint cannot
// wedge the registry, which holds its lock across closure I/O.
const callTimeout = 10 * time.Second

// ElectrumOracle implements ChainOracle over an Electrum SSL endpoint.
//
// Each call dials its own short-lived connection and shuts it down on the
// same path. No pooling, no subscriptions.
type ElectrumOracle struct {
	endpoint string
	tlsCfg   *tls.Config
	metrics  *metrics.Metrics
}

// NewElectrumOracle creates an oracle for the given host:port endpoint.
// When validateCert is false the server certificate chain and host name
// are not checked, which self-hosted nodes commonly require.
func NewElectrumOracle(endpoint string, validateCert bool, m *metrics.Metrics) *ElectrumOracle {
	return &ElectrumOracle{
		endpoint: endpoint,
		tlsCfg:   &tls.Config{InsecureSkipVerify: !validateCert},
		metrics:  m,
	}
}

// connect dials a fresh client for one logical RPC.
func (o *ElectrumOracle) connect(ctx context.Context, op string) (*electrum.Client, error) {
	if o.metrics != nil {
		o.metrics.RecordOracleCall(op)
	}
	client, err := electrum.NewClientSSL(ctx, o.endpoint, o.tlsCfg)
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("failed to connect to %s: %w", o.endpoint, err)}
	}
	return client, nil
}

// GetTx fetches a transaction by id and deserializes it.
func (o *ElectrumOracle) GetTx(ctx context.Context, txid *chainhash.Hash) (*wire.MsgTx, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client, err := o.connect(ctx, "get_tx")
	if err != nil {
		return nil, err
	}
	defer client.Shutdown()

	rawHex, err := client.GetRawTransaction(ctx, txid.String())
	if err != nil {
		// Electrum reports unknown txids as a server error on an
		// otherwise healthy connection.
		return nil, &Error{Op: "get_tx", Err: fmt.Errorf("%w: %s", ErrTxNotFound, txid)}
	}

	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, &Error{Op: "get_tx", Err: fmt.Errorf("endpoint returned invalid hex: %w", err)}
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, &Error{Op: "get_tx", Err: fmt.Errorf("endpoint returned invalid transaction: %w", err)}
	}
	return &tx, nil
}

// ListUnspent lists the unspent outputs paying the given output script.
func (o *ElectrumOracle) ListUnspent(ctx context.Context, pkScript []byte) ([]Unspent, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client, err := o.connect(ctx, "list_unspent")
	if err != nil {
		return nil, err
	}
	defer client.Shutdown()

	results, err := client.ListUnspent(ctx, scriptHash(pkScript))
	if err != nil {
		return nil, &Error{Op: "list_unspent", Err: err}
	}

	unspent := make([]Unspent, 0, len(results))
	for _, r := range results {
		hash, err := chainhash.NewHashFromStr(r.Hash)
		if err != nil {
			return nil, &Error{Op: "list_unspent", Err: fmt.Errorf("endpoint returned invalid txid %q: %w", r.Hash, err)}
		}
		unspent = append(unspent, Unspent{
			Hash:   *hash,
			Index:  r.Position,
			Value:  int64(r.Value),
			Height: int32(r.Height),
		})
	}
	return unspent, nil
}

// EstimateFeeRate asks for a next-block fee estimate, converted to sat/vB.
func (o *ElectrumOracle) EstimateFeeRate(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client, err := o.connect(ctx, "estimate_fee")
	if err != nil {
		return 0, err
	}
	defer client.Shutdown()

	btcPerKvB, err := client.GetFee(ctx, 1)
	if err != nil {
		return 0, &Error{Op: "estimate_fee", Err: err}
	}
	if btcPerKvB < 0 {
		// The protocol reports -1 when the daemon has no estimate.
		return 0, &Error{Op: "estimate_fee", Err: fmt.Errorf("endpoint has no fee estimate")}
	}

	return float64(btcPerKvB) * 1e8 / 1000, nil
}

// Broadcast submits the serialized transaction and returns the accepted txid.
func (o *ElectrumOracle) Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client, err := o.connect(ctx, "broadcast")
	if err != nil {
		return nil, err
	}
	defer client.Shutdown()

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, &Error{Op: "broadcast", Err: fmt.Errorf("failed to serialize transaction: %w", err)}
	}

	txidStr, err := client.BroadcastTransaction(ctx, hex.EncodeToString(buf.Bytes()))
	if err != nil {
		return nil, &Error{Op: "broadcast", Err: err}
	}

	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return nil, &Error{Op: "broadcast", Err: fmt.Errorf("endpoint returned invalid txid %q: %w", txidStr, err)}
	}
	return txid, nil
}

// scriptHash converts an output script to the Electrum script hash: the
// sha256 of the script, byte-reversed, hex-encoded.
func scriptHash(pkScript []byte) string {
	h := sha256.Sum256(pkScript)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return hex.EncodeToString(h[:])
}
