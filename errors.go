// errors.go: Error taxonomy for dynconf
//
// Every failure raised by the package carries a DYNCONF_* code so callers can
// branch on the failure class without matching message text.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for dynconf operations
const (
	// ErrCodeInvalidConfig marks malformed item, items-source, storage or settings declarations.
	ErrCodeInvalidConfig = "DYNCONF_INVALID_CONFIG"
	// ErrCodeUnknownItem is returned when an item id is not declared in the Manager.
	ErrCodeUnknownItem = "DYNCONF_UNKNOWN_ITEM"
	// ErrCodePathResolution marks missing keys or properties along a path, empty paths
	// and attempts to descend into non-traversable values.
	ErrCodePathResolution = "DYNCONF_PATH_RESOLUTION"
	// ErrCodeValidation marks rule setup failures.
	ErrCodeValidation = "DYNCONF_VALIDATION"
	// ErrCodePropertyAssignment marks failures while applying a configuration key onto a live target.
	ErrCodePropertyAssignment = "DYNCONF_PROPERTY_ASSIGNMENT"
	// ErrCodeStorage wraps failures raised by storage backends.
	ErrCodeStorage = "DYNCONF_STORAGE"
	// ErrCodeUnknownDriver is returned when no storage driver is registered under a name.
	ErrCodeUnknownDriver = "DYNCONF_UNKNOWN_DRIVER"
)

// ErrorCode extracts the DYNCONF_* code from the outermost coded error in the chain.
// Returns an empty string for nil or uncoded errors.
func ErrorCode(err error) string {
	for err != nil {
		if coder, ok := err.(errors.ErrorCoder); ok {
			return string(coder.ErrorCode())
		}
		err = goerrors.Unwrap(err)
	}
	return ""
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		if coder, ok := err.(errors.ErrorCoder); ok && string(coder.ErrorCode()) == code {
			return true
		}
		err = goerrors.Unwrap(err)
	}
	return false
}

func unknownItemError(id string) error {
	return errors.New(ErrCodeUnknownItem, fmt.Sprintf("unknown config item '%s'", id))
}

func emptyPathError() error {
	return errors.New(ErrCodePathResolution, "empty extraction path")
}

func invalidConfigError(format string, args ...interface{}) error {
	return errors.New(ErrCodeInvalidConfig, fmt.Sprintf(format, args...))
}
