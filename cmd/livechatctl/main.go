package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/livechat/internal/client"
	"github.com/matheus3301/livechat/internal/project"
	"github.com/spf13/cobra"
)

var (
	projectFlag string
	jsonFlag    bool
	startFlag   bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "livechatctl",
	Short:         "Query and drive a livechat project daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "project name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&startFlag, "start", false, "start the daemon if it is not running")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func resolveProject() (string, error) {
	name := project.Resolve(projectFlag)
	if err := project.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// connect dials the daemon of the active project, starting it first when
// --start is set.
func connect() (*client.Client, string, error) {
	name, err := resolveProject()
	if err != nil {
		return nil, "", err
	}
	socketPath := project.SocketPath(name)

	if startFlag && !probeDaemon(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for project %q, starting...\n", name)
		if err := startDaemon(name); err != nil {
			return nil, "", fmt.Errorf("start daemon: %w", err)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			return nil, "", fmt.Errorf("daemon did not become ready")
		}
	}

	c, err := client.New(socketPath)
	if err != nil {
		return nil, "", fmt.Errorf("cannot connect to daemon for project %q: %w", name, err)
	}
	return c, name, nil
}

// withClient runs fn against the daemon with the request timeout applied.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	c, _, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
