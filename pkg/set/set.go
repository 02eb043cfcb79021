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

// Package set contains a minimal set of comparable values
package set

// Set is a set of comparable values. The zero value is not usable,
// use New or From
type Set[T comparable] struct {
	innerMap map[T]struct{}
}

// New creates a new empty set
func New[T comparable]() *Set[T] {
	return &Set[T]{innerMap: make(map[T]struct{})}
}

// From creates a set holding the passed values
func From[T comparable](values ...T) *Set[T] {
	result := New[T]()
	for _, value := range values {
		result.Put(value)
	}
	return result
}

// Put adds a value to the set, telling if it was not already there
func (set *Set[T]) Put(value T) bool {
	if set.Has(value) {
		return false
	}
	set.innerMap[value] = struct{}{}
	return true
}

// Has checks if a value is in the set
func (set *Set[T]) Has(value T) bool {
	_, ok := set.innerMap[value]
	return ok
}

// Len returns the number of values in the set
func (set *Set[T]) Len() int {
	return len(set.innerMap)
}

// ToList returns the values in the set, in no particular order
func (set *Set[T]) ToList() []T {
	result := make([]T, 0, len(set.innerMap))
	for value := range set.innerMap {
		result = append(result, value)
	}
	return result
}
