package models

import (
	"fmt"
	"strings"
)

// Stage is the position of a session in the workflow
type Stage int

const (
	StageSetup Stage = iota
	StageUnderstanding
	StageGeneration
	StageRefinement
)

var stageNames = [...]string{"SETUP", "UNDERSTANDING", "GENERATION", "REFINEMENT"}

func (s Stage) String() string {
	if s < StageSetup || s > StageRefinement {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Valid reports whether s is one of the four known stages.
func (s Stage) Valid() bool {
	return s >= StageSetup && s <= StageRefinement
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStage accepts a stage name in any case.
func ParseStage(name string) (Stage, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return StageSetup, fmt.Errorf("unknown stage %q", name)
}
