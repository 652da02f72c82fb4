package core

import (
	"errors"
	"fmt"
)

var ErrEmptySelection = errors.New("no features selected")

// ContractError is an input-contract violation. It is raised before any
// generation runs and maps to a rejected request at the API boundary.
type ContractError struct {
	Field  string
	Reason string
}

func (e *ContractError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsContractError reports whether err wraps a *ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
