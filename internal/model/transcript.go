// Package model drives the language model that proposes alpha expressions.
package model

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// Role is the author of a transcript turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message of the conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Transcript is the ordered conversation sent to the model on every
// iteration.
type Transcript struct {
	Turns []Turn `json:"turns"`
}

// Append adds a turn.
func (t *Transcript) Append(role Role, text string) {
	t.Turns = append(t.Turns, Turn{Role: role, Text: text})
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.Turns) }

// Last returns the final turn, or false when empty.
func (t *Transcript) Last() (Turn, bool) {
	if len(t.Turns) == 0 {
		return Turn{}, false
	}
	return t.Turns[len(t.Turns)-1], true
}

// ErrEmptyOutput means the model answered without a usable structured body.
var ErrEmptyOutput = errors.New("model returned no structured output")

// Generator produces the next structured answer for a transcript.
type Generator interface {
	Generate(ctx context.Context, t Transcript) (Output, error)
	CountTokens(ctx context.Context, t Transcript) (int, error)
}

// RenderTurn formats out as the model turn of zero-based iteration i.
func RenderTurn(i int, out Output) string {
	var b strings.Builder
	b.WriteString("Iteration #")
	b.WriteString(strconv.Itoa(i + 1))
	for _, f := range out.Fields {
		b.WriteString("\n")
		b.WriteString(f.Name)
		b.WriteString(":\n")
		b.WriteString(f.Value)
	}
	return b.String()
}
