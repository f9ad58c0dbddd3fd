// Copyright 2025 Tagstore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package util provides shared utility functions for tagstore.
package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DatabaseRetryOptions returns retry options for database writes. Linear
// backoff (100ms, 200ms, 300ms) is enough to ride out WAL checkpoint
// contention between the CLI and the reconciler.
func DatabaseRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// DefaultRetryOptions returns sensible defaults for retry operations.
func DefaultRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(1 * time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	}
}

// Retry executes fn with retry logic.
// Returns the last error if all attempts fail.
func Retry(ctx context.Context, fn func() error, opts ...retry.Option) error {
	if len(opts) == 0 {
		opts = DefaultRetryOptions(ctx)
	}
	return retry.Do(fn, opts...)
}

// RetryWithResult executes fn with retry logic and returns the result.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = DefaultRetryOptions(ctx)
	}
	return retry.DoWithData(fn, opts...)
}

// IsDatabaseLocked returns true if the error indicates a database lock.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}
