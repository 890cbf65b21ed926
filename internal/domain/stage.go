package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stage is the observation phase of a dataset within a year.
type Stage uint8

const (
	StageUnknown Stage = iota
	StageBefore
	StageDuring
	StageAfter
	StageComparative
)

// Stages lists every valid stage in display order.
var Stages = []Stage{StageBefore, StageDuring, StageAfter, StageComparative}

var stageNames = map[Stage]string{
	StageBefore:      "Before",
	StageDuring:      "During",
	StageAfter:       "After",
	StageComparative: "Comparative",
}

// ParseStage accepts the lower-case wire form or the display name.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "before":
		return StageBefore, nil
	case "during":
		return StageDuring, nil
	case "after":
		return StageAfter, nil
	case "comparative":
		return StageComparative, nil
	default:
		return StageUnknown, fmt.Errorf("unknown stage %q", s)
	}
}

// Valid reports whether s is one of the four defined stages.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "Unknown"
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", s)
	}
	return []byte(strings.ToLower(s.String())), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	v, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// StageSet is a set of stages. The zero value is empty.
type StageSet uint8

// NewStageSet builds a set from the given stages, ignoring invalid ones.
func NewStageSet(stages ...Stage) StageSet {
	var set StageSet
	for _, s := range stages {
		set = set.With(s)
	}
	return set
}

func (set StageSet) Has(s Stage) bool {
	if !s.Valid() {
		return false
	}
	return set&(1<<s) != 0
}

func (set StageSet) With(s Stage) StageSet {
	if !s.Valid() {
		return set
	}
	return set | 1<<s
}

func (set StageSet) Without(s Stage) StageSet {
	if !s.Valid() {
		return set
	}
	return set &^ (1 << s)
}

// List returns the members in display order.
func (set StageSet) List() []Stage {
	out := make([]Stage, 0, len(Stages))
	for _, s := range Stages {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

func (set StageSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(set.List())
}

func (set *StageSet) UnmarshalJSON(b []byte) error {
	var stages []Stage
	if err := json.Unmarshal(b, &stages); err != nil {
		return err
	}
	*set = NewStageSet(stages...)
	return nil
}
