package output

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newTestRenderer(mode Mode) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, false, mode), out, errOut
}

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want Mode
	}{
		{mode: "", want: ModeText},
		{mode: ModeAuto, want: ModeText},
		{mode: ModeText, want: ModeText},
		{mode: ModeJSON, want: ModeJSON},
		{mode: ModeYAML, want: ModeYAML},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r, _, _ := newTestRenderer(tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestRenderer_NotTerminal(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
}

func TestRenderer_PlainText(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeText)

	r.Header(1, "Classes")
	r.Success("checked")
	r.StatusLine("main.star", "error", "(2 classes)")
	r.Warning("careful")
	r.Error("broken")

	assert.Equal(t, "# Classes\n✓ checked\n✗ main.star (2 classes)\n", out.String())
	assert.Equal(t, "! careful\n✗ broken\n", errOut.String())
	assert.False(t, ansiPattern.MatchString(out.String()+errOut.String()))
}

func TestRenderer_Diagnostic(t *testing.T) {
	r, _, errOut := newTestRenderer(ModeText)

	r.Diagnostic(Diagnostic{
		Kind:    "access violation",
		File:    "main.star",
		Line:    12,
		Class:   "Account",
		Member:  "funds",
		Message: "cannot read private member",
		Hint:    "move the access into a method of Account",
	})

	assert.Equal(t, "access violation: main.star:12 Account.funds\n"+
		"  cannot read private member\n"+
		"  hint: move the access into a method of Account\n", errOut.String())
}

func TestRenderer_Structured(t *testing.T) {
	v := map[string]any{"name": "A", "members": []string{"x"}}

	r, out, _ := newTestRenderer(ModeJSON)
	ok, err := r.Structured(v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"name":"A","members":["x"]}`, out.String())

	r, out, _ = newTestRenderer(ModeYAML)
	ok, err = r.Structured(v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "members:\n  - x\nname: A\n", out.String())

	r, out, _ = newTestRenderer(ModeText)
	ok, err = r.Structured(v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, out.String())
}

func TestRenderer_Table(t *testing.T) {
	r, out, _ := newTestRenderer(ModeText)
	r.Table(table.Row{"Class", "Access"}, []table.Row{{"A", "public"}, {"B", "private"}})

	assert.Contains(t, out.String(), "CLASS")
	assert.Contains(t, out.String(), "private")
}

func TestStyles_Color(t *testing.T) {
	plain := NewStyles(false)
	assert.Equal(t, "x", plain.Error.Render("x"))

	assert.Equal(t, "## Members", FormatHeader(2, "Members"))
	assert.Equal(t, "# X", FormatHeader(0, "X"))
}
