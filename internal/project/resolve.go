package project

import "github.com/matheus3301/livechat/internal/config"

const DefaultName = "main"

// Resolve determines the active project using precedence:
// 1. flagOverride (--project flag)
// 2. config.toml default_project
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProject != "" {
		return cfg.DefaultProject
	}
	return DefaultName
}
