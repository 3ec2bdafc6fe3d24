package model

import "fmt"

// Mode selects which graph Build constructs.
type Mode int

const (
	Train Mode = iota
	Validate
	Infer
)

func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Validate:
		return "validate"
	case Infer:
		return "infer"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ModeFromFlags maps the training/validation flag pair to a Mode. Asking
// for both is an error; asking for neither selects Infer.
func ModeFromFlags(isTraining, isValid bool) (Mode, error) {
	switch {
	case isTraining && isValid:
		return 0, ErrConflictingModes
	case isTraining:
		return Train, nil
	case isValid:
		return Validate, nil
	default:
		return Infer, nil
	}
}
