package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirHonorsHomeEnv(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	if got, want := Dir("main"), filepath.Join(base, "projects", "main"); got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
	if got, want := DBPath("p1"), filepath.Join(base, "projects", "p1", "livechat.db"); got != want {
		t.Errorf("DBPath(p1) = %q, want %q", got, want)
	}
}

func TestDefaultBaseDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".livechat"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestPathSuffixes(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{SocketPath("test"), filepath.Join("projects", "test", "daemon.sock")},
		{LockPath("test"), filepath.Join("projects", "test", "LOCK")},
		{LogPath("test"), filepath.Join("projects", "test", "logs", "livechatd.log")},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, tt.want) {
			t.Errorf("path %q, want suffix %q", tt.got, tt.want)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
}

func TestResolve(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q", got)
	}
	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve without config = %q, want %q", got, DefaultName)
	}
	if err := os.WriteFile(filepath.Join(base, "config.toml"), []byte(`default_project = "acme"`), 0600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "acme" {
		t.Errorf("Resolve from config = %q, want acme", got)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "tenant42", false},
		{"valid with hyphen", "my-project", false},
		{"valid with underscore", "my_project", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my project", true},
		{"dot", "my.project", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/project", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
