package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matheus3301/livechat/internal/api"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [prefix]",
	Short: "Stream daemon events, optionally filtered by kind prefix (store., push., sync., outbox.)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		c, _, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = c.Watch(ctx, prefix, printEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func printEvent(e api.Event) error {
	payload, err := protojson.Marshal(e.Payload)
	if err != nil {
		return err
	}
	if jsonFlag {
		outputJSON(map[string]any{
			"event_id":    e.ID,
			"project":     e.Project,
			"kind":        e.Kind,
			"occurred_at": e.OccurredAt,
			"payload":     jsonRaw(payload),
		})
		return nil
	}
	fmt.Printf("%s  %-24s %s\n", e.OccurredAt.Format("15:04:05.000"), e.Kind, payload)
	return nil
}

type jsonRaw []byte

func (r jsonRaw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}
