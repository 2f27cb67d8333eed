package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/livechat/internal/config"
	"github.com/matheus3301/livechat/internal/daemon"
	"github.com/matheus3301/livechat/internal/project"
	"go.uber.org/fx"
	"go.uber.org/zap/zapcore"
)

func main() {
	projectFlag := flag.String("project", "", "project name (overrides config default)")
	levelFlag := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	projectID := project.Resolve(*projectFlag)
	if err := project.ValidateName(projectID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level, err := zapcore.ParseLevel(*levelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadWithEnv(project.ConfigPath(), project.EnvPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProjectID: projectID,
			Config:    *cfg,
			LogLevel:  level,
		}),
	)

	app.Run()
}
