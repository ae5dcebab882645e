// Package render draws pattern views of a run for terminals, chat
// notifications and machine consumers.
package render

import "github.com/dkoosis/runledger/pkg/pattern"

// Renderer converts patterns to formatted output.
type Renderer interface {
	Render(patterns []pattern.Pattern) string
}

// ByFormat returns the renderer for a --format value. Unknown formats fall
// back to the terminal renderer.
func ByFormat(format string, theme Theme, width int) Renderer {
	switch format {
	case "json":
		return NewJSON()
	case "markdown", "md":
		return NewMarkdown()
	default:
		return NewTerminal(theme, width)
	}
}
