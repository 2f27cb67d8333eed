package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/livechat/internal/client"
	"github.com/matheus3301/livechat/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	searchCmd.Flags().String("chat", "", "restrict the search to one chat number")
	searchCmd.Flags().Int("limit", 50, "maximum number of results")

	rootCmd.AddCommand(messagesCmd, sendCmd, searchCmd)
}

var messagesCmd = &cobra.Command{
	Use:   "messages <number>",
	Short: "Show the cached conversation with a number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			msgs, err := c.ListMessages(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(msgs)
				return nil
			}
			if len(msgs) == 0 {
				fmt.Println("No messages.")
				return nil
			}
			for _, m := range msgs {
				printMessage(m)
			}
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <number> <text>...",
	Short: "Queue a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			m, err := c.SendText(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(m)
				return nil
			}
			fmt.Printf("Queued %s (%s)\n", m.MessageID, m.Status)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over cached messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chat, _ := cmd.Flags().GetString("chat")
		limit, _ := cmd.Flags().GetInt("limit")
		return withClient(func(ctx context.Context, c *client.Client) error {
			results, err := c.SearchMessages(ctx, strings.Join(args, " "), chat, limit)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(results)
				return nil
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%s  %s  %s\n", when(r.Message.Timestamp), r.Message.ChatNumber, r.Snippet)
			}
			return nil
		})
	},
}

func printMessage(m store.Message) {
	who := "<"
	if m.Type == store.DirectionOut {
		who = ">"
	}
	body := m.Message
	if m.MessageType != "" && m.MessageType != "text" {
		body = fmt.Sprintf("[%s] %s", m.MessageType, body)
	}
	line := fmt.Sprintf("%s %s %s", when(m.Timestamp), who, body)
	if m.Type == store.DirectionOut {
		line += fmt.Sprintf("  (%s)", m.Status)
	}
	if m.Status == store.StatusFailed && m.FailedReason != "" {
		line += " " + m.FailedReason
	}
	fmt.Println(line)
}
