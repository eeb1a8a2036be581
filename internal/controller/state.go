package controller

import (
	"fmt"

	"github.com/dmorgan81/imagine/internal/display"
)

type State int

const (
	Idle State = iota
	Loading
	Success
	Error
)

var stateNames = map[State]string{
	Idle:    "idle",
	Loading: "loading",
	Success: "success",
	Error:   "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Snapshot is a point-in-time view of a Controller.
type Snapshot struct {
	State  State       `json:"state"`
	Prompt string      `json:"prompt,omitempty"`
	Image  display.Ref `json:"image,omitempty"`
}

// ImageVisible is true only in the success state.
func (s Snapshot) ImageVisible() bool {
	return s.State == Success
}
