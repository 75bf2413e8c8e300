package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/grouphug/internal/txtest"
)

func TestMockGetTx(t *testing.T) {
	mock := NewMockOracle()
	funding := txtest.FundingTx(50000, txtest.Script(0x01))
	mock.AddTx(funding)

	hash := funding.TxHash()
	tx, err := mock.GetTx(context.Background(), &hash)
	require.NoError(t, err)
	assert.Equal(t, funding.TxHash(), tx.TxHash())

	other := txtest.FundingTx(50000, txtest.Script(0x02))
	otherHash := other.TxHash()
	_, err = mock.GetTx(context.Background(), &otherHash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTxNotFound))
}

func TestMockListUnspentExcludesSpent(t *testing.T) {
	mock := NewMockOracle()
	script := txtest.Script(0x01)
	funding := txtest.FundingTx(50000, script, script)
	mock.AddTx(funding)

	unspent, err := mock.ListUnspent(context.Background(), script)
	require.NoError(t, err)
	assert.Len(t, unspent, 2)

	mock.MarkSpent(wire.OutPoint{Hash: funding.TxHash(), Index: 0})
	unspent, err = mock.ListUnspent(context.Background(), script)
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	assert.EqualValues(t, 1, unspent[0].Index)

	mock.MarkSpent(wire.OutPoint{Hash: funding.TxHash(), Index: 1})
	unspent, err = mock.ListUnspent(context.Background(), script)
	require.NoError(t, err)
	assert.Empty(t, unspent)
}

func TestMockBroadcastSpendsInputs(t *testing.T) {
	mock := NewMockOracle()
	script := txtest.Script(0x01)
	funding := txtest.FundingTx(50000, script)
	mock.AddTx(funding)

	spend := txtest.SpendTx(wire.OutPoint{Hash: funding.TxHash(), Index: 0}, 40000, txtest.Script(0x02), txtest.Witness())
	txid, err := mock.Broadcast(context.Background(), spend)
	require.NoError(t, err)
	assert.Equal(t, spend.TxHash(), *txid)
	require.Len(t, mock.Broadcasts, 1)

	// The spent funding output disappears from the unspent view and the
	// broadcast transaction becomes known to the chain.
	unspent, err := mock.ListUnspent(context.Background(), script)
	require.NoError(t, err)
	assert.Empty(t, unspent)

	spendHash := spend.TxHash()
	_, err = mock.GetTx(context.Background(), &spendHash)
	assert.NoError(t, err)
}

func TestMockForcedErrors(t *testing.T) {
	mock := NewMockOracle()
	boom := errors.New("endpoint down")
	mock.SetError("estimate_fee", boom)

	_, err := mock.EstimateFeeRate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, mock.CallCount("estimate_fee"))

	mock.SetError("estimate_fee", nil)
	rate, err := mock.EstimateFeeRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, rate)
}
