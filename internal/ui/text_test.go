package ui

import (
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

// plain turns colour off for the rest of the test.
func plain(t *testing.T) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
}

// colored forces colour on for the rest of the test, even without a
// terminal.
func colored(t *testing.T) {
	t.Helper()
	// Setenv restores the variable on cleanup; noColor only checks presence.
	t.Setenv("NO_COLOR", "")
	os.Unsetenv("NO_COLOR")

	original := color.NoColor
	t.Cleanup(func() { color.NoColor = original })
	color.NoColor = false
}

func TestStatusLinesWithoutColor(t *testing.T) {
	plain(t)

	for _, tc := range []struct {
		name string
		line string
		want string
	}{
		{"synced", Succeeded("Password store synced"), "✓ Password store synced"},
		{"up to date", Hint("Everything up to date"), "→ Everything up to date"},
		{"cancelled prompt", Warned("Cancelled, nothing was changed"), "⚠ Cancelled, nothing was changed"},
		{"push rejected", Failure("The remote has commits you do not have", ""), "✗ The remote has commits you do not have"},
		{
			"host key changed",
			Failure("The host key of example.com changed", "Run "+Code.Sprint("passgit remote clear-host-key")+" if this is expected"),
			"✗ The host key of example.com changed\n→ Run `passgit remote clear-host-key` if this is expected",
		},
		{"flag hint", Failure("An SSH key already exists", "Use "+Flag.Sprint("--force")+" to replace it"), "✗ An SSH key already exists\n→ Use --force to replace it"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.line)
		})
	}
}

func TestDecorationsWithoutColor(t *testing.T) {
	plain(t)

	assert.Equal(t, "'ssh-key'", Highlight.Sprint("ssh-key"))
	assert.Equal(t, "(protected by a PIN)", Muted.Sprint("protected by a PIN"))
	assert.Equal(t, "`passgit git recover`", Code.Sprintf("passgit git %s", "recover"))
	assert.Equal(t, "`passgit git`", Code.Sprint("passgit", " ", "git"))
	assert.Equal(t, "~/.local/share/passgit/store", Path.Sprint("~/.local/share/passgit/store"))
}

func TestColorDropsDecorations(t *testing.T) {
	colored(t)

	for name, f := range map[string]Formatter{"code": Code, "highlight": Highlight, "muted": Muted} {
		got := f.Sprintf("remote %s", "git@example.com:me/store.git")
		assert.Contains(t, got, "\x1b[", name)
		assert.Contains(t, got, "remote git@example.com:me/store.git", name)
		assert.NotContains(t, got, "`", name)
		assert.NotContains(t, got, "'remote", name)
		assert.NotContains(t, got, "(remote", name)
	}
}

func TestNoColorHonoursEnvironmentAndTerminal(t *testing.T) {
	plain(t)
	assert.True(t, noColor())

	colored(t)
	assert.False(t, noColor())

	color.NoColor = true
	assert.True(t, noColor(), "a dumb terminal disables colour too")
}

func TestEnsureNewline(t *testing.T) {
	assert.Equal(t, "\n", EnsureNewline(""))
	assert.Equal(t, "synced\n", EnsureNewline("synced"))
	assert.Equal(t, "synced\n", EnsureNewline("synced\n"))
}
