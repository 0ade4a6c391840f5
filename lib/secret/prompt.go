// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Prompt writes prompt to stderr and reads a line from the terminal on
// stdin without echo. Fails if stdin is not a terminal.
func Prompt(prompt string) (*Buffer, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("secret: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("secret: reading from terminal: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("secret: empty input")
	}
	return NewFromBytes(data)
}
