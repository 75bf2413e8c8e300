// Package server - Line-oriented client frontend
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/yourusername/grouphug/internal/config"
)

// maxLineBytes bounds one command line. Hex transactions grow well past
// bufio's default token size.
const maxLineBytes = 1 << 20

// Frontend accepts client connections and dispatches whitespace-separated
// commands to the registry, one goroutine per connection.
type Frontend struct {
	registry *Registry
	addr     string
	greeting string
	log      *zap.Logger
}

// NewFrontend wires a frontend to its registry and listen address.
func NewFrontend(registry *Registry, cfg *config.Config, log *zap.Logger) *Frontend {
	return &Frontend{
		registry: registry,
		addr:     net.JoinHostPort(cfg.Server.IP, cfg.Server.Port),
		greeting: strings.ToUpper(cfg.Network.Name) + "\n",
		log:      log.Named("frontend"),
	}
}

// ListenAndServe accepts connections until the context is done.
func (f *Frontend) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", f.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	f.log.Info("listening", zap.String("addr", f.addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go f.handleConn(ctx, conn)
	}
}

// handleConn serves one client. Commands are processed strictly in order;
// an empty read or a non-UTF8 payload ends the connection silently.
func (f *Frontend) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	f.log.Debug("client connected", zap.String("remote", conn.RemoteAddr().String()))
	defer f.log.Debug("client disconnected", zap.String("remote", conn.RemoteAddr().String()))

	if _, err := io.WriteString(conn, f.greeting); err != nil {
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if !utf8.ValidString(line) {
			return
		}

		tokens := strings.Fields(line)
		if len(tokens) == 0 || len(tokens) > 2 {
			io.WriteString(conn, "One or two arguments are expected\n")
			continue
		}

		switch tokens[0] {
		case "add_tx":
			if len(tokens) != 2 {
				io.WriteString(conn, "One or two arguments are expected\n")
				continue
			}
			if err := f.registry.Admit(ctx, tokens[1]); err != nil {
				fmt.Fprintf(conn, "Error: %s\n", err.Error())
			} else {
				io.WriteString(conn, "Ok\n")
			}

		case "get_groupsInfo":
			if len(tokens) != 1 {
				io.WriteString(conn, "One or two arguments are expected\n")
				continue
			}
			infos := f.registry.Snapshot()
			if len(infos) == 0 {
				io.WriteString(conn, "There's no groups\n")
			}
			for _, gi := range infos {
				fmt.Fprintf(conn, "Fee: %.1f, Size: %d/%d, Timestamp: %d\n",
					gi.FeeRate, gi.Size, gi.MaxSize, gi.Timestamp)
			}
			io.WriteString(conn, "EOF\n")

		default:
			io.WriteString(conn, "Unknown command sent\n")
		}
	}
}
