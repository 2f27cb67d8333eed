package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/livechat/internal/client"
	"github.com/matheus3301/livechat/internal/lock"
	"github.com/matheus3301/livechat/internal/project"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd, syncCmd, projectsCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.GetStatus(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(st)
				return nil
			}
			fmt.Printf("Project:  %s\n", st.Project)
			fmt.Printf("State:    %s\n", st.State)
			if st.Reason != "" {
				fmt.Printf("Reason:   %s\n", st.Reason)
			}
			fmt.Printf("Push:     %s\n", onOff(st.PushConnected, "connected", "disconnected"))
			fmt.Printf("Syncing:  %v\n", st.Syncing)
			fmt.Printf("Cache:    %s\n", onOff(st.CacheAvailable, "available", "unavailable"))
			if st.OpenChat != "" {
				fmt.Printf("Open:     %s\n", st.OpenChat)
			}
			fmt.Printf("Chats:    %d\n", st.ChatCount)
			fmt.Printf("Messages: %d\n", st.MessageCount)
			fmt.Printf("Uptime:   %s\n", st.Uptime.Round(time.Second))
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the remote chat list now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			sum, err := c.SyncNow(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(sum)
				return nil
			}
			fmt.Printf("Synced %d chats in %d pages", sum.Chats, sum.Pages)
			if sum.Skipped > 0 {
				fmt.Printf(" (%d skipped)", sum.Skipped)
			}
			fmt.Println()
			return nil
		})
	},
}

type projectInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	DaemonPID int    `json:"daemon_pid,omitempty"`
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List known projects and whether their daemon is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := os.ReadDir(filepath.Join(project.BaseDir(), "projects"))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		var out []projectInfo
		for _, e := range entries {
			if !e.IsDir() || project.ValidateName(e.Name()) != nil {
				continue
			}
			dir := project.Dir(e.Name())
			out = append(out, projectInfo{Name: e.Name(), Path: dir, DaemonPID: lock.Holder(dir)})
		}
		if jsonFlag {
			outputJSON(out)
			return nil
		}
		if len(out) == 0 {
			fmt.Println("No projects found.")
			return nil
		}
		for _, p := range out {
			running := "stopped"
			if p.DaemonPID > 0 {
				running = fmt.Sprintf("running, pid %d", p.DaemonPID)
			}
			fmt.Printf("%-20s %s (%s)\n", p.Name, p.Path, running)
		}
		return nil
	},
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}
