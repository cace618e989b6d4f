package pkg

import "strings"

// Contains check source have target
func Contains(slice []string, val string) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

// UniqueTrimmed trim every element, drop blanks and duplicates, keep first-seen order
func UniqueTrimmed(slice []string) []string {
	out := make([]string, 0, len(slice))
	seen := make(map[string]struct{}, len(slice))
	for _, v := range slice {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Without return slice minus every element of remove, order kept
func Without(slice, remove []string) []string {
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if !Contains(remove, v) {
			out = append(out, v)
		}
	}
	return out
}

// Chunk split slice into parts of at most size elements
func Chunk(slice []string, size int) [][]string {
	if size <= 0 {
		size = len(slice)
	}
	var chunks [][]string
	for start := 0; start < len(slice); start += size {
		end := start + size
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[start:end])
	}
	return chunks
}
