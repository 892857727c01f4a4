package cli

import (
	"strings"
	"testing"
)

func TestDefaultConfigPath(t *testing.T) {
	path := defaultConfigPath()
	if !strings.Contains(path, ".instruments") {
		t.Errorf("defaultConfigPath() = %q, want it to contain .instruments", path)
	}
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("defaultConfigPath() = %q, want it to end in config.toml", path)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := []string{"estimators", "strategies", "decisions", "save", "restore"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("rootCmd missing subcommand %q", name)
		}
	}
}
