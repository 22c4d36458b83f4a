// Package colors provides the terminal palette for receipt output.
//
// Colors are automatically disabled when stdout is not a terminal. Use Init to
// override based on the --color flag.
package colors

import "github.com/fatih/color"

// Init overrides the auto-detected color setting when forceColor is non-nil.
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

// Label is used for field names.
func Label() *color.Color { return color.New(color.Bold, color.FgBlue) }

// Heading is used for section titles.
func Heading() *color.Color { return color.New(color.Bold, color.FgHiWhite) }

// Faint is used for secondary details such as attribute versions.
func Faint() *color.Color { return color.New(color.Faint) }

// OK marks a passed check.
func OK() *color.Color { return color.New(color.Bold, color.FgGreen) }

// Fail marks a failed check.
func Fail() *color.Color { return color.New(color.Bold, color.FgRed) }

// Warn marks something the user should look at.
func Warn() *color.Color { return color.New(color.FgYellow) }

// Good marks a healthy value.
func Good() *color.Color { return color.New(color.FgGreen) }

// Bad marks an unhealthy value.
func Bad() *color.Color { return color.New(color.FgRed) }
