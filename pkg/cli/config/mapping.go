package config

import (
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Mapping configures status normalization overrides loaded from a TOML
// file:
//
//	[statuses]
//	"wrapping up" = "Busy"
//	sidebar = "OnACall"
//
// File entries take precedence over the built-in token table. Targets
// must be canonical statuses.
type Mapping struct {
	path string
}

// NewMapping creates a mapping config pointing at the given file
func NewMapping(path string) *Mapping {
	return &Mapping{path: path}
}

type mappingFile struct {
	Statuses map[string]string `toml:"statuses"`
}

func (x *Mapping) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "status-mapping",
			Usage:       "Path to a TOML file with status normalization overrides",
			Category:    "Mapping",
			Destination: &x.path,
			Sources:     cli.EnvVars("BRIAREUS_STATUS_MAPPING"),
		},
	}
}

func (x Mapping) LogValue() slog.Value {
	return slog.GroupValue(slog.String("path", x.path))
}

// Configure loads the override file and builds the normalizer. Without a
// file the built-in table is used as-is.
func (x *Mapping) Configure() (*types.Normalizer, error) {
	if x.path == "" {
		return types.DefaultNormalizer(), nil
	}

	raw, err := os.ReadFile(x.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read status mapping file", goerr.V("path", x.path))
	}

	var file mappingFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse status mapping file", goerr.V("path", x.path))
	}

	overrides := make(map[string]types.Status, len(file.Statuses))
	for raw, target := range file.Statuses {
		status := types.Status(target)
		if !status.IsCanonical() {
			return nil, goerr.New("status mapping target is not canonical",
				goerr.V("raw", raw), goerr.V(types.StatusKey, target))
		}
		overrides[raw] = status
	}

	return types.NewNormalizer(overrides), nil
}
