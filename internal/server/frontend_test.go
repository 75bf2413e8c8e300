package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/grouphug/internal/config"
	"github.com/yourusername/grouphug/internal/txtest"
)

// dialFrontend runs handleConn on one end of a pipe and returns the client
// end with the greeting already consumed.
func dialFrontend(t *testing.T, registry *Registry) (net.Conn, *bufio.Reader) {
	t.Helper()

	cfg := config.Default()
	f := NewFrontend(registry, cfg, zap.NewNop())

	serverSide, clientSide := net.Pipe()
	go f.handleConn(context.Background(), serverSide)
	t.Cleanup(func() { clientSide.Close() })

	reader := bufio.NewReader(clientSide)
	greeting, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "TESTNET\n", greeting)

	return clientSide, reader
}

func roundTrip(t *testing.T, conn net.Conn, reader *bufio.Reader, command string) string {
	t.Helper()
	_, err := fmt.Fprintf(conn, "%s\n", command)
	require.NoError(t, err)
	reply, err := reader.ReadString('\n')
	require.NoError(t, err)
	return reply
}

func TestFrontendAddTxAndGroupsInfo(t *testing.T) {
	registry, _, funding, _ := newTestRegistry(t, 3)
	conn, reader := dialFrontend(t, registry)

	spend := txtest.SpendTxWithRate(wire.OutPoint{Hash: funding.TxHash(), Index: 0}, priorValue, 2.5, txtest.Script(0xb0))
	assert.Equal(t, "Ok\n", roundTrip(t, conn, reader, "add_tx "+txtest.Hex(spend)))

	info := roundTrip(t, conn, reader, "get_groupsInfo")
	assert.Regexp(t, `^Fee: 2\.0, Size: 1/3, Timestamp: \d+\n$`, info)
	eof, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "EOF\n", eof)
}

func TestFrontendRejectionAndProtocolErrors(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t, 3)
	conn, reader := dialFrontend(t, registry)

	assert.Equal(t, "Error: Error decoding hex\n", roundTrip(t, conn, reader, "add_tx nothex"))
	assert.Equal(t, "Unknown command sent\n", roundTrip(t, conn, reader, "frobnicate"))
	assert.Equal(t, "One or two arguments are expected\n", roundTrip(t, conn, reader, "add_tx a b"))
	assert.Equal(t, "One or two arguments are expected\n", roundTrip(t, conn, reader, "get_groupsInfo extra"))

	// An empty registry still terminates the listing with EOF.
	assert.Equal(t, "There's no groups\n", roundTrip(t, conn, reader, "get_groupsInfo"))
	eof, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "EOF\n", eof)
}

func TestFrontendListenAndServeOverTCP(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t, 3)

	cfg := config.Default()
	cfg.Server.IP = "127.0.0.1"
	cfg.Server.Port = "0"

	f := NewFrontend(registry, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	f.addr = addr
	done := make(chan error, 1)
	go func() { done <- f.ListenAndServe(ctx) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	greeting, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "TESTNET\n", greeting)

	cancel()
	require.NoError(t, <-done)
}
