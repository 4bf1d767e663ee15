package alpha_test

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/alphaloop/internal/alpha"
	"github.com/sawpanic/alphaloop/internal/alpha/testkit"
)

func TestDecode_PlatformDocument(t *testing.T) {
	data, err := os.ReadFile("testdata/result_usa.json")
	require.NoError(t, err)

	r, err := alpha.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "kqXbr2E", r.ID)
	assert.Equal(t, 1.42, r.InSample.Sharpe)
	assert.Equal(t, 4816253.0, r.InSample.PnL.Total)
	require.True(t, r.HasSplit())
	assert.Equal(t, 0.91, r.Test.Sharpe)
	assert.Equal(t, 1.55, r.Train.Sharpe)

	sub, ok := r.Check(alpha.CheckLowSubUniverseSharpe)
	require.True(t, ok)
	assert.Equal(t, 0.61, sub.Limit)
	assert.Equal(t, 0.83, sub.ValueOr(0))

	selfCorr, ok := r.Check(alpha.CheckSelfCorrelation)
	require.True(t, ok)
	assert.False(t, selfCorr.HasValue())
	assert.False(t, selfCorr.Result.Passed())
}

func TestDecode_MissingMandatoryCheck(t *testing.T) {
	for _, name := range alpha.MandatoryChecks {
		t.Run(name, func(t *testing.T) {
			doc := testkit.Document(testkit.Without(testkit.Passing(), name))

			_, err := alpha.Decode(doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, alpha.ErrMissingMandatoryCheck))

			var missing *alpha.MissingCheckError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, name, missing.Name)
		})
	}
}

func TestDecode_OptionalChecksMayBeAbsent(t *testing.T) {
	r := testkit.Without(testkit.Passing(), alpha.CheckISLadderSharpe)

	got, err := alpha.Decode(testkit.Document(r))
	require.NoError(t, err)

	_, ok := alpha.FindFirst(got.Checks(), alpha.LadderChecks...)
	assert.False(t, ok)
	_, ok = alpha.FindFirst(got.Checks(), alpha.SubUniverseChecks...)
	assert.False(t, ok)
}

func TestDecode_DuplicateSubmissionCheck(t *testing.T) {
	r := testkit.Passing()
	r.InSample.Checks = append(r.InSample.Checks, testkit.Check(alpha.CheckLowSharpe, alpha.ResultFail, 1.0, 0.2))

	_, err := alpha.Decode(testkit.Document(r))
	assert.True(t, errors.Is(err, alpha.ErrDuplicateCheck))
}

func TestDecode_MissingInSample(t *testing.T) {
	_, err := alpha.Decode([]byte(`{"id":"x","train":{"sharpe":1}}`))
	assert.True(t, errors.Is(err, alpha.ErrMissingInSample))
}

func TestDecode_EmptyWindowsAreAbsent(t *testing.T) {
	r := testkit.Passing()
	r.Train, r.Test = nil, nil

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(testkit.Document(r), &doc))
	doc["train"] = map[string]interface{}{}
	doc["test"] = nil
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	got, err := alpha.Decode(data)
	require.NoError(t, err)
	assert.Nil(t, got.Train)
	assert.Nil(t, got.Test)
	assert.False(t, got.HasSplit())
}

func TestFindCheck(t *testing.T) {
	checks := []alpha.ThresholdCheck{
		testkit.Check(alpha.CheckLow2YSharpe, alpha.ResultPass, 1.0, 1.1),
		testkit.Check(alpha.CheckLowSharpe, alpha.ResultFail, 1.25, 0.9),
	}

	c, ok := alpha.FindCheck(checks, alpha.CheckLowSharpe)
	require.True(t, ok)
	assert.Equal(t, alpha.ResultFail, c.Result)

	_, ok = alpha.FindCheck(checks, alpha.CheckLowFitness)
	assert.False(t, ok)

	_, ok = alpha.FindCheck(nil, alpha.CheckLowFitness)
	assert.False(t, ok)

	ladder, ok := alpha.FindFirst(checks, alpha.LadderChecks...)
	require.True(t, ok)
	assert.Equal(t, alpha.CheckLow2YSharpe, ladder.Name)
}

func TestMustCheck(t *testing.T) {
	r := testkit.Passing()

	c, err := r.MustCheck(alpha.CheckLowFitness)
	require.NoError(t, err)
	assert.Equal(t, 0.5, c.Limit)

	_, err = r.MustCheck(alpha.CheckLowSubUniverseSharpe)
	assert.ErrorIs(t, err, alpha.ErrMissingMandatoryCheck)
}

func TestPnL_Records(t *testing.T) {
	var p alpha.PnL
	err := json.Unmarshal([]byte(`[["2020-01-02", 0.0, 1.0], ["2020-01-03", 125.5], ["2020-01-06", null]]`), &p)
	require.NoError(t, err)

	require.Len(t, p.Points, 3)
	assert.Equal(t, time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), p.Points[1].Date)
	assert.Equal(t, 125.5, p.Points[2].Value)
	assert.Equal(t, 125.5, p.Total)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `[["2020-01-02",0],["2020-01-03",125.5],["2020-01-06",125.5]]`, string(data))
}

func TestPnL_Scalar(t *testing.T) {
	var p alpha.PnL
	require.NoError(t, json.Unmarshal([]byte(`4816253`), &p))
	assert.Equal(t, 4816253.0, p.Total)
	assert.Empty(t, p.Points)

	require.Error(t, json.Unmarshal([]byte(`[["not-a-date", 1]]`), &p))
	require.Error(t, json.Unmarshal([]byte(`[["2020-01-02"]]`), &p))
}
