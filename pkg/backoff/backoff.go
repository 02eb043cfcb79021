/*
Copyright © contributors to CloudNativePG, established as
CloudNativePG a Series of LF Projects, LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package backoff maps a bounded exponential backoff policy to the
// options of retry-go, and classifies the outcome of the retries
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
)

// ErrAttemptsExhausted is matched by every ExhaustedError
var ErrAttemptsExhausted = errors.New("attempts exhausted")

// Policy describes how many times an operation is tried and how
// long to wait between two consecutive attempts. The wait doubles
// after every failed attempt
type Policy struct {
	// Attempts is the maximum number of times the operation is invoked
	Attempts int

	// Delay is the time waited after the first failed attempt
	Delay time.Duration

	// MaxDelay is the maximum wait time between two attempts. Zero means no cap
	MaxDelay time.Duration

	// MaxJitter is the maximum random time added to every wait
	MaxJitter time.Duration
}

func (p Policy) attempts() uint {
	if p.Attempts < 1 {
		return 1
	}
	return uint(p.Attempts)
}

// Delays returns the sequence of waits this policy would apply if
// every attempt failed. Jitter is not taken into account
func (p Policy) Delays() []time.Duration {
	attempts := p.attempts()
	result := make([]time.Duration, 0, attempts-1)
	delay := p.Delay
	for i := uint(1); i < attempts; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		result = append(result, delay)
		delay *= 2
	}
	return result
}

// Options returns the retry-go options implementing the policy
func (p Policy) Options() []retry.Option {
	delayType := retry.BackOffDelay
	if p.MaxJitter > 0 {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}

	return []retry.Option{
		retry.Attempts(p.attempts()),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.MaxJitter(p.MaxJitter),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrAttemptsExhausted, e.Attempts, e.Err)
}

// Is makes errors.Is(err, ErrAttemptsExhausted) work
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAttemptsExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs the operation until it succeeds, it fails with an error that
// is not retryable, the attempts are exhausted or the context is done.
// The passed options are applied after the ones of the policy, and are
// where OnRetry and WithTimer belong
func Do(
	ctx context.Context,
	policy Policy,
	retryable func(error) bool,
	operation func(ctx context.Context) error,
	opts ...retry.Option,
) error {
	options := append(policy.Options(),
		retry.Context(ctx),
		retry.RetryIf(retryable))
	options = append(options, opts...)

	err := retry.New(options...).Do(func() error {
		// A done context must stop the retries even when the timer fired first
		if err := ctx.Err(); err != nil {
			return err
		}
		return operation(ctx)
	})
	if err != nil && ctx.Err() == nil && retryable(err) {
		return &ExhaustedError{Attempts: int(policy.attempts()), Err: err}
	}
	return err
}

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// DefaultTimer is the retry.Timer waiting on the wall clock
var DefaultTimer retry.Timer = realTimer{}

// SleepFunc waits for the passed duration, or until the context is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the SleepFunc based on a real timer
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
