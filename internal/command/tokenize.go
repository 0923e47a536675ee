package command

import (
	"errors"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// SplitArgs splits s on whitespace. Single or double quotes group words
// into one argument and are removed; a quote of the other kind inside them
// is kept literally.
func SplitArgs(s string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)
	// "" is a real, empty argument.
	hasToken := false

	for i := 0; i < len(s); i++ {
		char := s[i]

		switch {
		case char == '"' || char == '\'':
			hasToken = true
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		case (char == ' ' || char == '\t') && !inQuotes:
			if hasToken {
				args = append(args, current.String())
				current.Reset()
				hasToken = false
			}
		default:
			hasToken = true
			current.WriteByte(char)
		}
	}

	if inQuotes {
		return nil, errUnterminatedQuote
	}
	if hasToken {
		args = append(args, current.String())
	}
	return args, nil
}
