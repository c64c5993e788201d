// errors_test.go: Tests for error codes
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/agilira/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "", ErrorCode(goerrors.New("plain")))
	assert.Equal(t, ErrCodeUnknownItem, ErrorCode(unknownItemError("x")))

	wrapped := fmt.Errorf("context: %w", emptyPathError())
	assert.Equal(t, ErrCodePathResolution, ErrorCode(wrapped))

	outer := errors.Wrap(invalidConfigError("inner"), ErrCodeStorage, "outer")
	assert.Equal(t, ErrCodeStorage, ErrorCode(outer))
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("context: %w", unknownItemError("x"))
	assert.True(t, HasCode(err, ErrCodeUnknownItem))
	assert.False(t, HasCode(err, ErrCodeStorage))
	assert.False(t, HasCode(nil, ErrCodeStorage))
}

func TestUnknownItemErrorMessage(t *testing.T) {
	assert.Contains(t, unknownItemError("siteName").Error(), "unknown config item 'siteName'")
}
