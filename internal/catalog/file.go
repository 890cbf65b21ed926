package catalog

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// File is the on-disk catalog layout (YAML, JSON or TOML).
type File struct {
	Events []FileEvent `mapstructure:"events"`
	Grid   *FileGrid   `mapstructure:"grid"`
}

// FileEvent is one explicit catalog entry.
type FileEvent struct {
	Year        int    `mapstructure:"year"`
	Stage       string `mapstructure:"stage"`
	Label       string `mapstructure:"label"`
	Description string `mapstructure:"description"`
}

// FileGrid expands to Grid(From, To, Stages...) before the explicit events.
type FileGrid struct {
	From   int      `mapstructure:"from"`
	To     int      `mapstructure:"to"`
	Stages []string `mapstructure:"stages"`
}

// Load reads a catalog file. An empty path returns the built-in catalog.
func Load(path string) ([]domain.EventDescriptor, error) {
	if path == "" {
		return Tabasco(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}

	entries, err := f.Descriptors()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog %s has no entries", path)
	}
	if err := Validate(entries); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return entries, nil
}

// Descriptors converts the file layout to descriptors. Explicit events
// replace grid entries with the same key; two explicit events with the same
// key are an error.
func (f File) Descriptors() ([]domain.EventDescriptor, error) {
	var out []domain.EventDescriptor
	pos := make(map[domain.Key]int)

	if f.Grid != nil {
		if f.Grid.To < f.Grid.From {
			return nil, fmt.Errorf("grid: to %d before from %d", f.Grid.To, f.Grid.From)
		}
		stages := make([]domain.Stage, 0, len(f.Grid.Stages))
		for _, s := range f.Grid.Stages {
			stage, err := domain.ParseStage(s)
			if err != nil {
				return nil, fmt.Errorf("grid: %w", err)
			}
			stages = append(stages, stage)
		}
		for _, d := range Grid(f.Grid.From, f.Grid.To, stages...) {
			pos[d.Key()] = len(out)
			out = append(out, d)
		}
	}

	explicit := make(map[domain.Key]struct{}, len(f.Events))
	for i, e := range f.Events {
		stage, err := domain.ParseStage(e.Stage)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		d := domain.EventDescriptor{
			Year:        e.Year,
			Stage:       stage,
			Label:       e.Label,
			Description: e.Description,
		}
		if _, dup := explicit[d.Key()]; dup {
			return nil, fmt.Errorf("event %d: duplicate %s", i, d.Key())
		}
		explicit[d.Key()] = struct{}{}

		if at, ok := pos[d.Key()]; ok {
			out[at] = d
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
