package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/alphaloop/internal/model"
)

type recordingSink struct {
	saved       []Iteration
	transcripts int
	err         error
}

func (r *recordingSink) Save(_ context.Context, it Iteration) error {
	r.saved = append(r.saved, it)
	return r.err
}

func (r *recordingSink) SaveTranscript(_ context.Context, _ uuid.UUID, _ model.Transcript) error {
	r.transcripts++
	return nil
}

type plainSink struct{ n int }

func (p *plainSink) Save(context.Context, Iteration) error {
	p.n++
	return nil
}

func TestMultiSink_AttemptsAll(t *testing.T) {
	failing := &recordingSink{err: errors.New("disk full")}
	ok := &plainSink{}
	sinks := MultiSink{failing, ok}

	it := Iteration{RunID: uuid.New(), Index: 0, Expression: "rank(close)"}
	err := sinks.Save(context.Background(), it)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, failing.saved, 1)
	assert.Equal(t, 1, ok.n)
}

func TestMultiSink_Transcript(t *testing.T) {
	rec := &recordingSink{}
	sinks := MultiSink{rec, &plainSink{}}

	var tr model.Transcript
	tr.Append(model.RoleUser, "hello")
	require.NoError(t, sinks.SaveTranscript(context.Background(), uuid.New(), tr))
	assert.Equal(t, 1, rec.transcripts)
}
