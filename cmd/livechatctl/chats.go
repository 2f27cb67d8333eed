package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/livechat/internal/client"
	"github.com/matheus3301/livechat/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	chatCmd.AddCommand(chatUpdateCmd)
	chatUpdateCmd.Flags().String("name", "", "display name")
	chatUpdateCmd.Flags().Bool("favorite", false, "mark or unmark as favorite")
	chatUpdateCmd.Flags().Int("unread", 0, "set the unread count")

	rootCmd.AddCommand(chatsCmd, chatCmd, openCmd, closeCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			chats, err := c.ListChats(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(chats)
				return nil
			}
			if len(chats) == 0 {
				fmt.Println("No chats.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NUMBER\tNAME\tUNREAD\tLAST\tSTATUS\tWHEN")
			for _, ch := range chats {
				fmt.Fprintf(w, "%s\t%s%s\t%d\t%s\t%s\t%s\n",
					ch.Number, favoriteMark(ch), ch.DisplayName(), ch.UnreadCount,
					preview(ch.Last), ch.Last.Status, when(ch.Last.At))
			}
			return w.Flush()
		})
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Manage a single chat",
}

var chatUpdateCmd = &cobra.Command{
	Use:   "update <number>",
	Short: "Rename, (un)favorite or set the unread count of a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var u client.ChatUpdate
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			u.Name = &name
		}
		if cmd.Flags().Changed("favorite") {
			fav, _ := cmd.Flags().GetBool("favorite")
			u.IsFavorite = &fav
		}
		if cmd.Flags().Changed("unread") {
			n, _ := cmd.Flags().GetInt("unread")
			u.UnreadCount = &n
		}
		if u == (client.ChatUpdate{}) {
			return fmt.Errorf("nothing to update: pass --name, --favorite or --unread")
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			ch, err := c.UpdateChat(ctx, args[0], u)
			if err != nil {
				return err
			}
			printChat(ch)
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <number>",
	Short: "Mark a chat as open on screen and clear its unread count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			ch, err := c.OpenChat(ctx, args[0])
			if err != nil {
				return err
			}
			printChat(ch)
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Clear the open chat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.CloseChat(ctx)
		})
	},
}

func printChat(ch store.Chat) {
	if jsonFlag {
		outputJSON(ch)
		return
	}
	fmt.Printf("Number:   %s\n", ch.Number)
	fmt.Printf("Name:     %s\n", ch.DisplayName())
	fmt.Printf("Favorite: %v\n", ch.IsFavorite)
	fmt.Printf("Unread:   %d\n", ch.UnreadCount)
	if ch.Last.UniqueID != "" {
		fmt.Printf("Last:     %s (%s)\n", preview(ch.Last), ch.Last.Status)
	}
}

func favoriteMark(ch store.Chat) string {
	if ch.IsFavorite {
		return "* "
	}
	return ""
}

func preview(l store.LastMessage) string {
	text := l.Message
	if text == "" && l.MessageType != "" && l.MessageType != "text" {
		text = "[" + l.MessageType + "]"
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > 40 {
		text = string(r[:39]) + "…"
	}
	if l.Type == store.DirectionOut && text != "" {
		text = "you: " + text
	}
	return text
}

func when(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
