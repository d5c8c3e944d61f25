// Copyright 2026 Blink Labs Software
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

package common

import "errors"

// Failure conditions shared by every calculation package. Callers match them
// with errors.Is; packages wrap them with the offending input for context.
var (
	// ErrDivisionByZero is returned for ratios that are genuinely undefined,
	// such as using a zero price as a denominator. Empty pools, zero debt and
	// zero share supply have defined results and never produce it.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrPriceUnavailable is returned when the price collaborator could not
	// supply a usable USD price.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrInconsistentSnapshot is returned when raw state violates a
	// precondition that only stale or corrupted input can produce.
	ErrInconsistentSnapshot = errors.New("inconsistent snapshot")

	// ErrParameterOutOfRange is returned when a model parameter violates its
	// documented range.
	ErrParameterOutOfRange = errors.New("parameter out of range")

	// ErrOverflow is returned when an exact integer result does not fit in
	// its destination type.
	ErrOverflow = errors.New("integer overflow")
)
