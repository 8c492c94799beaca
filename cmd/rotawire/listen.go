package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/rotawire/internal/config"
	"github.com/vovakirdan/rotawire/internal/realtime"
)

var (
	listenOrigin string
	listenToken  string
	listenRooms  []string
	listenEvents []string
	listenRetry  time.Duration
)

// listenCmd connects a realtime channel and prints what arrives
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect to a server and print received events",
	Long: `Connect to a rotawire server, join rooms and print every event received.

Without --event every inbound message is printed. The connection is
re-established after --retry when the server goes away.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg.UpdateFrom(config.Config{Client: config.ClientConfig{Origin: listenOrigin}})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ch := realtime.New(realtime.Config{
			Origin:            cfg.Client.Origin,
			Path:              cfg.Client.Path,
			ConnectTimeout:    cfg.Client.ConnectTimeout,
			HeartbeatInterval: cfg.Client.HeartbeatInterval,
			QueueCapacity:     cfg.Client.QueueCapacity,
			Logger:            logger,
		})
		defer ch.Disconnect()

		subscribe(ch, cmd.OutOrStdout(), listenEvents)

		lost := make(chan struct{}, 1)
		ch.OnStateChange(func(ev realtime.StateEvent) {
			logger.Debug().Stringer("from", ev.Old).Stringer("to", ev.New).Msg("channel state")
			// Closing sits between Open and Disconnected on a local Disconnect.
			if ev.Old == realtime.StateOpen && ev.New == realtime.StateDisconnected {
				select {
				case lost <- struct{}{}:
				default:
				}
			}
		})

		for _, room := range listenRooms {
			ch.JoinRoom(room)
		}

		for {
			if err := ch.Connect(ctx, listenToken); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn().Err(err).Dur("retry", listenRetry).Msg("connect failed")
			} else {
				logger.Info().Str("origin", cfg.Client.Origin).Msg("connected")
				// rooms survive an unexpected close and are re-requested here
				for _, room := range ch.Rooms() {
					ch.JoinRoom(room)
				}
				select {
				case <-lost:
					logger.Warn().Dur("retry", listenRetry).Msg("connection lost")
				case <-ctx.Done():
					return nil
				}
			}

			select {
			case <-time.After(listenRetry):
			case <-ctx.Done():
				return nil
			}
		}
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenOrigin, "origin", "", "Server origin (default: client.origin from config)")
	listenCmd.Flags().StringVarP(&listenToken, "token", "t", "", "Access token")
	listenCmd.Flags().StringSliceVarP(&listenRooms, "room", "r", nil, "Room to join (repeatable)")
	listenCmd.Flags().StringSliceVarP(&listenEvents, "event", "e", nil, "Event type to print (repeatable, default: all)")
	listenCmd.Flags().DurationVar(&listenRetry, "retry", 5*time.Second, "Delay before reconnecting")
}

// subscribe prints matching inbound messages to out, one per line.
func subscribe(ch *realtime.Channel, out io.Writer, eventTypes []string) {
	var mu sync.Mutex
	printer := func(label string) realtime.Handler {
		return func(data json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.RFC3339), label, data)
		}
	}

	if len(eventTypes) == 0 {
		ch.AddEventListener(realtime.WildcardEvent, printer(realtime.WildcardEvent))
		return
	}
	for _, eventType := range eventTypes {
		ch.AddEventListener(eventType, printer(eventType))
	}
}
