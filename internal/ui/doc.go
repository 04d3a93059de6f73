// Package ui provides semantic text formatting for CLI output.
//
// This package defines formatters for different types of content (code,
// paths, errors, etc.) that render appropriately based on terminal
// capabilities. When colors are available, content is colorized. When
// NO_COLOR is set or the terminal doesn't support colors, text-based
// decorations (backticks, quotes) are used instead.
//
// # Semantic Formatters
//
// Use the appropriate formatter for the content type:
//
//	ui.Code.Sprint("passgit git sync")              // Commands and code
//	ui.Path.Sprint("~/.local/share/passgit/store")  // File paths
//	ui.Success.Sprint("✓")                           // Success indicators
//	ui.Error.Sprint("✗")                             // Error indicators
//	ui.Warning.Sprint("⚠")                           // Warnings
//	ui.Info.Sprint("→")                              // Informational hints
//	ui.Highlight.Sprint("git@github.com:me/pw.git") // User values
//	ui.Muted.Sprint("not pinned")                   // De-emphasized text
//
// # Status Lines
//
// Failure, Succeeded, Warned and Hint build the one-line outcomes every
// command prints:
//
//	fmt.Println(ui.Failure("No SSH key found", "Run "+ui.Code.Sprint("passgit key generate")))
//
// # Color Behavior
//
// Colors are disabled when:
//   - NO_COLOR environment variable is set (any value)
//   - Terminal doesn't support colors (TERM=dumb, not a TTY)
//
// When colors are disabled, formatters apply text decorations:
//   - Code: `backticks`
//   - Highlight: 'single quotes'
//   - Muted: (parentheses)
//   - Others: no decoration (self-evident from context)
package ui
