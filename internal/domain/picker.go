package domain

import (
	"fmt"

	"go.ngs.io/sti-api/internal/logging"
)

// FallbackVarName is the generic variable name some producers write instead
// of the index name.
const FallbackVarName = "var"

// VariableLister is anything exposing its data variable names: a decoded
// Dataset or an open decoder handle.
type VariableLister interface {
	DataVarNames() []string
}

// PickDataVar selects the variable holding the index values: preferred if
// present, else "var", else the only data variable. Anything else is
// ambiguous.
func PickDataVar(ds VariableLister, preferred string) (string, error) {
	names := ds.DataVarNames()

	var hasFallback bool
	for _, name := range names {
		if name == preferred {
			return preferred, nil
		}
		if name == FallbackVarName {
			hasFallback = true
		}
	}
	if hasFallback {
		return FallbackVarName, nil
	}

	if len(names) == 1 {
		logging.Warn().
			Str("preferred", preferred).
			Str("found", names[0]).
			Msg("Preferred variable not found, using the only data variable")
		return names[0], nil
	}

	return "", fmt.Errorf("%w: variable %q not found and no single variable to fall back to (available: %v)",
		ErrAmbiguousVariable, preferred, names)
}
