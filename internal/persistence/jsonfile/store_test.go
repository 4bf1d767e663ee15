package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/alphaloop/internal/model"
	"github.com/sawpanic/alphaloop/internal/persistence"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir(), "run1")
	require.NoError(t, err)

	data, err := os.ReadFile(s.SimulationsPath())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	runID := uuid.New()
	require.NoError(t, s.Save(ctx, persistence.Iteration{RunID: runID, Index: 0, Expression: "rank(close)", Result: json.RawMessage(`{"id":"a1"}`)}))
	require.NoError(t, s.Save(ctx, persistence.Iteration{RunID: runID, Index: 1, Expression: "rank(-returns)"}))
	require.NoError(t, s.Save(ctx, persistence.Iteration{RunID: uuid.New(), Index: 0, Expression: "other"}))

	got, err := s.ListRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rank(-returns)", got[1].Expression)
	assert.JSONEq(t, `{"id":"a1"}`, string(got[0].Result))

	var tr model.Transcript
	tr.Append(model.RoleUser, "Data Field Context:")
	tr.Append(model.RoleModel, "Iteration #1")
	require.NoError(t, s.SaveTranscript(ctx, runID, tr))

	raw, err := os.ReadFile(s.TranscriptPath())
	require.NoError(t, err)
	var doc struct {
		Turns []model.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, tr.Turns, doc.Turns)
}

func TestNew_DefaultName(t *testing.T) {
	s, err := New(t.TempDir(), "")
	require.NoError(t, err)
	assert.FileExists(t, s.SimulationsPath())
}
