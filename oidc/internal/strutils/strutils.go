// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package strutils

import "strings"

// StrListContains looks for a string in a list of strings.
func StrListContains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

// StrListContainsAll is true when every needle is in the haystack.
func StrListContainsAll(haystack []string, needles []string) bool {
	for _, n := range needles {
		if !StrListContains(haystack, n) {
			return false
		}
	}
	return true
}

// RemoveDuplicatesStable removes duplicate and empty elements from a slice of
// strings, preserving order (and case) of the original slice.
// A caseInsensitive value of true will make duplicate detection case
// insensitive but will not affect the case of the remaining strings.
func RemoveDuplicatesStable(items []string, caseInsensitive bool) []string {
	itemsMap := make(map[string]bool, len(items))
	deduplicated := make([]string, 0, len(items))

	for _, item := range items {
		key := item
		if caseInsensitive {
			key = strings.ToLower(key)
		}
		if key = strings.TrimSpace(key); key == "" || itemsMap[key] {
			continue
		}
		itemsMap[key] = true
		deduplicated = append(deduplicated, item)
	}
	return deduplicated
}
