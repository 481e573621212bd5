/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package util

// Ptr returns a pointer to the given value
func Ptr[T any](v T) *T {
	return &v
}

// BoolPtr returns a pointer to the given bool
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue returns the bool value or false if nil
func BoolValue(b *bool) bool {
	return BoolValueOr(b, false)
}

// BoolValueOr returns the bool value or def if nil
func BoolValueOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// FirstNonEmpty returns the first non empty string
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Contains reports whether list holds s
func Contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
