package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-extent-service/internal/adapter/source"
	"github.com/couchcryptid/flood-extent-service/internal/catalog"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// kmPerDegree on the sphere orb/geo measures area on.
const kmPerDegree = 2 * math.Pi * 6378.137 / 360

// fixtureCenter sits in the Tabasco lowlands.
var fixtureCenter = orb.Point{-92.93, 17.99}

// stageFactor scales the base area so stages of one year differ.
var stageFactor = map[domain.Stage]float64{
	domain.StageBefore:      0.25,
	domain.StageDuring:      1,
	domain.StageAfter:       0.6,
	domain.StageComparative: 0.4,
}

func newFixturesCmd(flags *globalFlags) *cobra.Command {
	var (
		outDir   string
		baseArea float64
		polygons int
		stages   []string
	)

	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Write synthetic flood-extent datasets for every catalog entry",
		Long: `fixtures writes one GeoJSON feature collection per catalog entry, named the
way the configured resolver names them, so a local DATA_SOURCE can be
populated without the real rasters. Areas are deterministic per (year, stage).`,
		Example: `  floodctl fixtures --out ./data
  floodctl fixtures --out ./data --stage during --stage after --area 250`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if baseArea <= 0 {
				return errors.New("--area must be positive")
			}
			if polygons < 1 {
				return errors.New("--polygons must be at least 1")
			}

			keep := domain.NewStageSet()
			for _, s := range stages {
				st, err := domain.ParseStage(s)
				if err != nil {
					return err
				}
				keep = keep.With(st)
			}

			entries, err := catalog.Load(cfg.CatalogFile)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", outDir, err)
			}

			resolver := source.NewResolver(cfg.SourcePattern, cfg.StageTokens, cfg.FoldAccents)
			written := 0
			for _, e := range entries {
				if len(stages) > 0 && !keep.Has(e.Stage) {
					continue
				}
				area := fixtureArea(e.Key(), baseArea)
				data, err := fixtureCollection(area, polygons).MarshalJSON()
				if err != nil {
					return fmt.Errorf("encoding %s: %w", e.ID(), err)
				}
				path := filepath.Join(outDir, filepath.FromSlash(resolver.Resolve(e.Stage, e.Year)))
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
				written++
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %10s km²  %s\n", e.ID(), strconv.FormatFloat(area, 'f', 2, 64), path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d datasets written to %s\n", written, outDir)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&outDir, "out", "./data", "output directory")
	f.Float64Var(&baseArea, "area", 120, "flooded area in km² of the during stage in the base year")
	f.IntVar(&polygons, "polygons", 3, "polygons per dataset")
	f.StringSliceVar(&stages, "stage", nil, "only write these stages (repeatable)")
	return cmd
}

// fixtureArea grows with the year so the chart has something to compare.
func fixtureArea(k domain.Key, base float64) float64 {
	return base * stageFactor[k.Stage] * (1 + float64(k.Year%5)/4)
}

// fixtureCollection splits area into n equal squares laid out west to east.
func fixtureCollection(areaKm2 float64, n int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	side := math.Sqrt(areaKm2 / float64(n))
	for i := range n {
		center := orb.Point{
			fixtureCenter.Lon() + float64(i)*2*side/(kmPerDegree*math.Cos(fixtureCenter.Lat()*math.Pi/180)),
			fixtureCenter.Lat(),
		}
		f := geojson.NewFeature(square(center, side))
		f.Properties["id"] = i + 1
		fc.Append(f)
	}
	return fc
}

// square returns a counter-clockwise square of the given side in km.
func square(center orb.Point, sideKm float64) orb.Polygon {
	dLat := sideKm / 2 / kmPerDegree
	dLon := sideKm / 2 / (kmPerDegree * math.Cos(center.Lat()*math.Pi/180))
	return orb.Polygon{orb.Ring{
		{center.Lon() - dLon, center.Lat() - dLat},
		{center.Lon() + dLon, center.Lat() - dLat},
		{center.Lon() + dLon, center.Lat() + dLat},
		{center.Lon() - dLon, center.Lat() + dLat},
		{center.Lon() - dLon, center.Lat() - dLat},
	}}
}
