// Package output renders shell output to the terminal with semantic styling.
package output

import "github.com/charmbracelet/lipgloss"

// SemanticType defines the semantic meaning of output for consistent styling.
type SemanticType string

const (
	// SemanticPlain represents plain text without any semantic meaning.
	SemanticPlain SemanticType = "plain"
	// SemanticInfo represents informational text.
	SemanticInfo SemanticType = "info"
	// SemanticError represents error text.
	SemanticError SemanticType = "error"
	// SemanticKey represents the key column of key/value output.
	SemanticKey SemanticType = "key"
)

// Theme maps semantic types to styles bound to a renderer.
type Theme map[SemanticType]lipgloss.Style

// DefaultTheme returns the standard ev colors for the given renderer.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		SemanticPlain: r.NewStyle(),
		SemanticInfo:  r.NewStyle().Foreground(lipgloss.Color("39")),
		SemanticError: r.NewStyle().Foreground(lipgloss.Color("196")),
		SemanticKey:   r.NewStyle().Bold(true),
	}
}

// Style returns the style for a semantic type, falling back to plain.
func (t Theme) Style(semantic SemanticType) lipgloss.Style {
	if style, ok := t[semantic]; ok {
		return style
	}
	return t[SemanticPlain]
}
