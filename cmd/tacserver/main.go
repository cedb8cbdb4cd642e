// Command tacserver runs the tacgo Tic-Tac-Toe match server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tacgo/tacgo/internal/config"
	"github.com/tacgo/tacgo/internal/match"
	"github.com/tacgo/tacgo/internal/model"
	"github.com/tacgo/tacgo/internal/session"
)

const ConfigPath = "config/tacserver.yaml"

func main() {
	port := flag.Int("p", 0, "TCP port to listen on (mandatory)")
	flag.Parse()

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "tacserver: -p <port> is mandatory and must be 1-65535")
		os.Exit(1)
	}

	signal.Ignore(syscall.SIGPIPE)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, *port); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, port int) error {
	cfgPath := ConfigPath
	if p := os.Getenv("TACSERVER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Port = port

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("tacserver starting", "bind", cfg.BindAddress, "port", cfg.Port, "max_sessions", cfg.MaxSessions)

	clients := session.NewRegistry(cfg.MaxSessions)
	players := model.NewRegistry()
	history := model.NewHistory(cfg.HistorySize)
	dispatcher := match.NewDispatcher(clients, players)
	srv := match.NewServer(clients, dispatcher, history)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return acceptLoop(gctx, ln, srv)
	})

	g.Go(func() error {
		return watchSignals(gctx, ln, clients)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// acceptLoop accepts connections until ctx is cancelled or the listener is
// closed (by watchSignals on shutdown), dispatching each to its own session
// loop.
func acceptLoop(ctx context.Context, ln net.Listener, srv *match.Server) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			slog.Error("accept failed", "err", err)
			continue
		}
		go srv.HandleConn(conn)
	}
}

// watchSignals blocks until ctx is cancelled or SIGHUP arrives, at which
// point it drives the graceful-shutdown quiescence protocol: drain every
// session, wait for the connected set to empty, close the listener so
// acceptLoop stops, then return.
func watchSignals(ctx context.Context, ln net.Listener, clients *session.Registry) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		_ = ln.Close()
		return nil
	case sig := <-sigCh:
		slog.Info("graceful shutdown requested", "signal", sig)
	}

	clients.ShutdownAll()
	clients.WaitForEmpty()
	slog.Info("all sessions drained, shutting down")
	_ = ln.Close()
	return nil
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
