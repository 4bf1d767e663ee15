package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/alphaloop/internal/model"
	"github.com/sawpanic/alphaloop/internal/platform"
)

func TestConsole_PlainTurns(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Banner("Run 1234")
	c.Turn(0, model.Turn{Role: model.RoleModel, Text: "Iteration #1"})
	c.Turn(0, model.Turn{Role: model.RoleUser, Text: "Sharpe: 1.5"})

	out := buf.String()
	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, "Run 1234\n")
	assert.Contains(t, out, "[Model #1]\nIteration #1\n\n")
	assert.Contains(t, out, "[User #1]\nSharpe: 1.5\n\n")
}

func TestConsole_PlainProgressPrintsStageChanges(t *testing.T) {
	var buf bytes.Buffer
	c := NewPlainConsole(&buf)

	c.Progress(platform.Progress{Stage: "simulate", Fraction: 0.1})
	c.Progress(platform.Progress{Stage: "simulate", Fraction: 0.5})
	c.Progress(platform.Progress{Stage: "result", Fraction: -1})

	assert.Equal(t, "simulate...\nresult...\n", buf.String())
}

func TestConsole_ColorProgressRedrawsLine(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{out: &buf, color: true}

	c.Progress(platform.Progress{Stage: "simulate", Fraction: 0.5})
	c.Turn(1, model.Turn{Role: model.RoleModel, Text: "x"})

	out := buf.String()
	assert.Contains(t, out, clearLine+"simulate [")
	assert.Contains(t, out, " 50%")
	assert.Contains(t, out, ")\n"+ansiCyan+ansiBold+"[Model #2]"+ansiReset)
}

func TestBar(t *testing.T) {
	assert.Equal(t, "[██░░]", bar(0.5, 4))
	assert.Equal(t, "[░░░░]", bar(-1, 4))
	assert.Equal(t, "[████]", bar(2, 4))
}
