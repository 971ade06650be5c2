//go:build tools

package main

// Pins CLI tools used for code generation.
import (
	_ "github.com/swaggo/swag/cmd/swag"
)
