package command

import "sort"

var allowList = map[string]struct{}{
	"ls":    {},
	"mkdir": {},
	"touch": {},
	"cd":    {},
	"pwd":   {},
	"git":   {},
}

// Allowed reports whether base is an allow-listed command. The match is exact.
func Allowed(base string) bool {
	_, ok := allowList[base]
	return ok
}

// AllowList returns the allow-listed commands in sorted order.
func AllowList() []string {
	names := make([]string, 0, len(allowList))
	for name := range allowList {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
