package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	prevOut, prevErr := Out, Err
	Out, Err = &out, &errOut
	t.Cleanup(func() { Out, Err = prevOut, prevErr })
	return &out, &errOut
}

func TestMessages(t *testing.T) {
	out, errOut := capture(t)

	Success("saved %d rules", 3)
	Info("gate: %s", "http://localhost:4000")
	Warn("token expires soon")
	Error("failed: %v", "boom")

	assert.Contains(t, out.String(), "✓ saved 3 rules\n")
	assert.Contains(t, out.String(), "gate: http://localhost:4000\n")
	assert.Contains(t, out.String(), "⚠ token expires soon\n")
	assert.Equal(t, "✗ failed: boom\n", errOut.String())
}

func TestSeverity(t *testing.T) {
	out, _ := capture(t)
	Severity("HIGH", "[%s] %s", "high", "SYN-Flood")
	assert.Equal(t, "[high] SYN-Flood\n", out.String())
}

func TestSeverityColor_Distinct(t *testing.T) {
	high := SeverityColor("high")
	low := SeverityColor("low")
	assert.False(t, high.Equals(low))
	assert.True(t, SeverityColor("unknown").Equals(color.New(color.FgWhite)))
}

func TestJSON(t *testing.T) {
	out, _ := capture(t)
	require.NoError(t, JSON(map[string]int{"count": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 2, got["count"])
	assert.Contains(t, out.String(), "\n  \"count\"")
}

func TestTable(t *testing.T) {
	out, _ := capture(t)

	table := NewTable([]string{"ID", "NAME"})
	table.AddRow([]string{"1", "SYN-Flood"})
	table.AddRow([]string{"22", "Port-Scan", "ignored"})
	table.Render()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID  NAME       ", lines[0])
	assert.Equal(t, "--  ---------  ", lines[1])
	assert.Equal(t, "1   SYN-Flood  ", lines[2])
	assert.Equal(t, "22  Port-Scan  ", lines[3])
}
