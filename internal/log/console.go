// Package log renders the run transcript and simulation progress on a
// terminal.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/sawpanic/alphaloop/internal/model"
	"github.com/sawpanic/alphaloop/internal/platform"
)

const (
	ansiReset   = "\033[0m"
	ansiGreen   = "\033[32m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiBold    = "\033[1m"
	clearLine   = "\r\033[K"
)

// Console prints turns and progress. Color and in-place progress lines are
// only used on a terminal.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool

	start     time.Time
	progress  bool
	lastStage string
}

// NewConsole writes to out. Color is enabled when out is a terminal.
func NewConsole(out io.Writer) *Console {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Console{out: out, color: color}
}

// NewPlainConsole never colors its output.
func NewPlainConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ansiReset
}

// Banner prints a section title.
func (c *Console) Banner(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgress()
	line := strings.Repeat("=", 60)
	fmt.Fprintln(c.out, c.paint(ansiMagenta, line))
	fmt.Fprintln(c.out, c.paint(ansiMagenta+ansiBold, title))
	fmt.Fprintln(c.out, c.paint(ansiMagenta, line))
}

// Turn prints one transcript turn, model turns in cyan and feedback in
// green.
func (c *Console) Turn(iteration int, turn model.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgress()

	code, who := ansiGreen, "User"
	if turn.Role == model.RoleModel {
		code, who = ansiCyan, "Model"
	}
	fmt.Fprintf(c.out, "%s\n%s\n\n", c.paint(code+ansiBold, fmt.Sprintf("[%s #%d]", who, iteration+1)), c.paint(code, turn.Text))
}

// Progress shows a platform poll. On a terminal the line is redrawn in
// place; otherwise only stage changes are printed.
func (c *Console) Progress(p platform.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.progress || p.Stage != c.lastStage {
		c.start = time.Now()
	}
	elapsed := time.Since(c.start).Round(time.Second)

	if !c.color {
		if p.Stage != c.lastStage {
			fmt.Fprintf(c.out, "%s...\n", p.Stage)
		}
		c.lastStage = p.Stage
		return
	}

	var sb strings.Builder
	sb.WriteString(clearLine)
	sb.WriteString(p.Stage)
	if p.Fraction >= 0 {
		sb.WriteString(" ")
		sb.WriteString(bar(p.Fraction, 30))
		fmt.Fprintf(&sb, " %3.0f%%", p.Fraction*100)
	}
	fmt.Fprintf(&sb, " (%v)", elapsed)
	fmt.Fprint(c.out, sb.String())

	c.progress = true
	c.lastStage = p.Stage
}

// endProgress finishes an in-place progress line. Callers hold mu.
func (c *Console) endProgress() {
	if c.progress {
		fmt.Fprintln(c.out)
		c.progress = false
	}
	c.lastStage = ""
}

func bar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
