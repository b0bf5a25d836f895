package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/denkarev/drawconquer/internal/config"
	"github.com/denkarev/drawconquer/internal/game"
	"github.com/denkarev/drawconquer/internal/matchmaker"
	"github.com/denkarev/drawconquer/internal/protocol"
	"github.com/denkarev/drawconquer/internal/watchdog"
	"github.com/denkarev/drawconquer/internal/ws"
)

func run(ctx context.Context, cfg config.Server) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("draw-and-conquer server starting",
		"bind", cfg.BindAddress,
		"matchmaker_port", cfg.MatchmakerPort,
		"game_port", cfg.GamePort,
		"lobby_size", cfg.LobbySize,
		"num_tiles", cfg.NumTiles)

	queueState := matchmaker.NewState()
	registry := game.NewRegistry()

	matchmakerServer := ws.NewServer("matchmaker", matchmaker.NewHandler(queueState))
	gameServer := ws.NewServer("game", game.NewHandler(registry))

	queueWatchdog := watchdog.NewQueue(queueState, registry,
		cfg.LobbySize, cfg.HeartbeatWindow(), cfg.NumTiles, cfg.ColourSelectionWindow())
	sessionWatchdog := watchdog.NewSession(registry)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.MatchmakerPort))
		if err := matchmakerServer.Run(gctx, addr); err != nil {
			return fmt.Errorf("matchmaker server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.GamePort))
		if err := gameServer.Run(gctx, addr); err != nil {
			return fmt.Errorf("game server: %w", err)
		}
		return nil
	})

	if cfg.EchoPort != 0 {
		echoServer := ws.NewServer("echo", ws.HandlerFunc(echoBack))
		g.Go(func() error {
			addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.EchoPort))
			if err := echoServer.Run(gctx, addr); err != nil {
				return fmt.Errorf("echo server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return queueWatchdog.Run(gctx)
	})

	g.Go(func() error {
		return sessionWatchdog.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// echoBack reflects valid JSON messages back to the sender. Debug
// endpoint for exercising the WebSocket layer end to end.
func echoBack(peer protocol.Peer, remoteAddr string, data []byte) {
	if !json.Valid(data) {
		protocol.WriteError(peer, protocol.ReasonInvalidJSON)
		return
	}
	_ = peer.WriteMessage(data)
}
