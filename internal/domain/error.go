/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package domain

import "errors"

var (
	ErrNotFound        = errors.New("item not found")
	ErrConflict        = errors.New("item already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBackend         = errors.New("storage backend failure")
)
