// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import "errors"

var (
	// ErrInvalidParameter represents an invalid parameter error condition.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNilParameter represents a nil parameter error condition.
	ErrNilParameter = errors.New("nil parameter")

	// ErrNotFound represents a session which doesn't exist or has expired.
	ErrNotFound = errors.New("session not found")

	// ErrStoreFailure represents a failure of the backing session store.
	ErrStoreFailure = errors.New("session store failure")
)
