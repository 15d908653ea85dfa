package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"citycore/internal/logging"
	"citycore/internal/protocol"
)

type botOptions struct {
	URL      string
	PlayerID string
	Name     string
	Token    string
	Seed     int64
	LogLevel string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &botOptions{}
	cmd := &cobra.Command{
		Use:          "citycore-bot",
		Short:        "Wandering test client that hovers and uses nearby fixtures",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.URL, "url", "ws://localhost:8080/v1/ws", "ws url")
	f.StringVar(&opts.PlayerID, "player", "bot", "player id")
	f.StringVar(&opts.Name, "name", "", "display name (defaults to the player id)")
	f.StringVar(&opts.Token, "resume", "", "resume token from a previous WELCOME")
	f.Int64Var(&opts.Seed, "seed", 1, "wander seed")
	f.StringVar(&opts.LogLevel, "log-level", "info", "log level")
	return cmd
}

func run(ctx context.Context, opts *botOptions) error {
	log := logging.Component(logging.New(opts.LogLevel, "text", os.Stdout), "bot")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerID:        opts.PlayerID,
		DisplayName:     opts.Name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if opts.Token != "" {
		hello.Auth = &protocol.HelloAuth{Token: opts.Token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	b := newBot(opts.Seed, conn.WriteJSON, log)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			log.WithFields(logrus.Fields{
				"conn":      w.ConnectionID,
				"pawn":      w.PawnID,
				"world":     w.WorldParams.WorldID,
				"tick_rate": w.WorldParams.TickRateHz,
				"resume":    w.ResumeToken,
			}).Info("WELCOME")
			b.onWelcome(w)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			b.onState(st)

		case protocol.TypeAccessInfo:
			var ai protocol.AccessInfoMsg
			if err := json.Unmarshal(msg, &ai); err != nil {
				continue
			}
			b.onAccessInfo(ai)
		}
	}
}
