package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/briareus/pkg/cli/config"
	"github.com/secmon-lab/briareus/pkg/domain/types"
)

func writeMapping(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0644)).Required()
	return path
}

func TestMappingConfigure(t *testing.T) {
	t.Run("no file yields the built-in table", func(t *testing.T) {
		var cfg config.Mapping
		n, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, n.Normalize("onphone")).Equal(types.StatusOnACall)
	})

	t.Run("file entries override and extend the table", func(t *testing.T) {
		path := writeMapping(t, `
[statuses]
"wrapping up" = "Busy"
busy = "DoNotDisturb"
`)
		cfg := config.NewMapping(path)
		n, err := cfg.Configure()
		gt.NoError(t, err).Required()

		gt.Value(t, n.Normalize("Wrapping Up")).Equal(types.StatusBusy)
		gt.Value(t, n.Normalize("busy")).Equal(types.StatusDoNotDisturb)
		gt.Value(t, n.Normalize("available")).Equal(types.StatusAvailable)
	})

	t.Run("non-canonical target is rejected", func(t *testing.T) {
		path := writeMapping(t, `
[statuses]
sidebar = "SortOfBusy"
`)
		cfg := config.NewMapping(path)
		_, err := cfg.Configure()
		gt.Error(t, err)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		cfg := config.NewMapping("/does/not/exist.toml")
		_, err := cfg.Configure()
		gt.Error(t, err)
	})
}
