package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREPL_Eval(t *testing.T) {
	th, cfg := setupTestTheme(t)
	dataFile := filepath.Join(t.TempDir(), "page.yaml")
	writeFile(t, dataFile, "name: Ada\nlangs:\n  - lang: go\n  - lang: lua\n")
	other := filepath.Join(t.TempDir(), "other.json")
	writeFile(t, other, `{"name": "Grace"}`)

	r, err := NewREPL(th.tm, dataFile)
	require.NoError(t, err)

	tests := []struct {
		name     string
		line     string
		want     string
		wantQuit bool
		wantErr  bool
	}{
		{name: "blank", line: "   "},
		{name: "variable", line: "Hi {{ name }}", want: "Hi Ada\n"},
		{name: "loop", line: "{{ langs }}<{{ lang }}>{{ /langs }}", want: "<go><lua>\n"},
		{name: "global data", line: "{{ site.title }}", want: "Demo\n"},
		{name: "callback", line: `{{ format value="x" format="upper" }}`, want: "X\n"},
		{name: "load", line: ":load " + filepath.Join(cfg.Server.SourceDir, "layouts", "about.html"), want: "About Demo (c) Demo\n"},
		{name: "load missing", line: ":load nope.html", wantErr: true},
		{name: "load without file", line: ":load", wantErr: true},
		{name: "structural error", line: "{{ if name }}x", wantErr: true},
		{name: "unknown command", line: ":publish", wantErr: true},
		{name: "quit", line: ":quit", wantQuit: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, quit, err := r.Eval(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantQuit, quit)
		})
	}

	out, _, err := r.Eval(":data")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{\n  \"name\": \"Ada\""), out)

	_, _, err = r.Eval(":data " + other)
	require.NoError(t, err)
	out, _, err = r.Eval("{{ name }}")
	require.NoError(t, err)
	assert.Equal(t, "Grace\n", out)

	out, _, err = r.Eval(":callbacks")
	require.NoError(t, err)
	assert.Contains(t, out, "template:partial\n")
}

func TestREPL_RunPiped(t *testing.T) {
	th, _ := setupTestTheme(t)
	r, err := NewREPL(th.tm, "")
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("one\n{{ site.title }}\n:quit\nnever\n")
	require.NoError(t, r.RunPiped(in, &out))
	assert.Equal(t, "one\nDemo\n", out.String())

	out.Reset()
	assert.Error(t, r.RunPiped(strings.NewReader("{{ /orphan }}\n"), &out))
}

func TestNewREPL_BadDataFile(t *testing.T) {
	th, _ := setupTestTheme(t)
	_, err := NewREPL(th.tm, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
