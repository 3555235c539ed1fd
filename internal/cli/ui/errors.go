// Package ui formats terminal output for the docrud CLI
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ SCHEMA INVALID: field children: unknown type Kid
//
//	   Did you mean: Child?
//
//	   → Check the schema: docrud check --schema schema.yaml
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		symbol = "❌"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if opts.NoColor {
		headerColor.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ServiceNotFoundError reports an unknown record type
func ServiceNotFoundError(name string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "SERVICE NOT FOUND",
		Problem:     fmt.Sprintf("Cannot find record type '%s'.", name),
		Suggestions: suggestions,
		HelpCommands: []string{
			"See all operations: docrud operations",
		},
		NoColor: noColor,
	})
}

// SchemaError reports a schema file that failed to load or validate
func SchemaError(message, path string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "SCHEMA INVALID",
		Problem: message,
		HelpCommands: []string{
			fmt.Sprintf("Check the schema: docrud check --schema %s", path),
		},
		NoColor: noColor,
	})
}

// ConfigError reports an invalid configuration
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "CONFIGURATION ERROR",
		Problem: message,
		HelpCommands: []string{
			"Settings are read from docrud.yaml and DOCRUD_* environment variables",
			"Get help: docrud serve --help",
		},
		NoColor: noColor,
	})
}
