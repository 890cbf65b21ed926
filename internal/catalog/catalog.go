// Package catalog provides the candidate event descriptors probed by discovery.
package catalog

import (
	"fmt"
	"strconv"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// Tabasco returns the built-in catalog of flood events observed in Tabasco.
func Tabasco() []domain.EventDescriptor {
	return []domain.EventDescriptor{
		{Year: 2019, Stage: domain.StageBefore, Label: "Jul 2019", Description: "Pre-Evento 2019"},
		{Year: 2019, Stage: domain.StageDuring, Label: "Oct-Nov 2019", Description: "Evento 2019"},
		{Year: 2019, Stage: domain.StageAfter, Label: "Dic 2019", Description: "Post-Evento 2019"},
		{Year: 2020, Stage: domain.StageBefore, Label: "Sept 2020", Description: "Pre-Inundación"},
		{Year: 2020, Stage: domain.StageDuring, Label: "Oct-Nov 2020", Description: "Inundación Grave"},
		{Year: 2020, Stage: domain.StageAfter, Label: "Dic 2020", Description: "Post-Inundación"},
		{Year: 2021, Stage: domain.StageDuring, Label: "Nov 2021", Description: "Evento 2021"},
		{Year: 2022, Stage: domain.StageDuring, Label: "Oct 2022", Description: "Evento 2022"},
		{Year: 2023, Stage: domain.StageDuring, Label: "Nov-Dic 2023", Description: "Evento 2023"},
		{Year: 2024, Stage: domain.StageDuring, Label: "Oct 2024", Description: "Evento 2024"},
	}
}

// Grid enumerates every (year, stage) pair in [from, to]. With no stages it
// uses all of them. Labels default to the year.
func Grid(from, to int, stages ...domain.Stage) []domain.EventDescriptor {
	if len(stages) == 0 {
		stages = domain.Stages
	}
	var out []domain.EventDescriptor
	for year := from; year <= to; year++ {
		for _, s := range stages {
			if !s.Valid() {
				continue
			}
			out = append(out, domain.EventDescriptor{
				Year:        year,
				Stage:       s,
				Label:       strconv.Itoa(year),
				Description: fmt.Sprintf("%s %d", s, year),
			})
		}
	}
	return out
}

// Validate rejects catalogs with invalid or duplicate entries.
func Validate(entries []domain.EventDescriptor) error {
	seen := make(map[domain.Key]struct{}, len(entries))
	for i, e := range entries {
		if e.Year <= 0 {
			return fmt.Errorf("entry %d: year must be positive", i)
		}
		if !e.Stage.Valid() {
			return fmt.Errorf("entry %d: invalid stage", i)
		}
		if _, dup := seen[e.Key()]; dup {
			return fmt.Errorf("entry %d: duplicate %s", i, e.Key())
		}
		seen[e.Key()] = struct{}{}
	}
	return nil
}
