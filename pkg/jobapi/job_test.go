package jobapi

import (
	"encoding/json"
	"testing"

	"github.com/seekerror/stdlib/pkg/lang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_MoveList(t *testing.T) {
	tests := []struct {
		name  string
		moves string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "e2e4", []string{"e2e4"}},
		{"several", "e2e4 e7e5 g1f3", []string{"e2e4", "e7e5", "g1f3"}},
		{"extra spaces", "e2e4  e7e5", []string{"e2e4", "e7e5"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			j := Job{Moves: tc.moves}
			assert.Equal(t, tc.want, j.MoveList())
		})
	}
}

func TestJob_EffectiveVariant(t *testing.T) {
	assert.Equal(t, "standard", Job{}.EffectiveVariant())
	assert.Equal(t, "chess960", Job{Variant: "chess960"}.EffectiveVariant())
}

func TestJob_NodesBudget(t *testing.T) {
	assert.EqualValues(t, 3_500_000, Job{}.NodesBudget())
	assert.EqualValues(t, 1000, Job{Nodes: lang.Some(int64(1000))}.NodesBudget())
}

func TestNewAnalysisResult_Length(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		r := NewAnalysisResult(n)
		assert.Len(t, r, n+1)
		for _, e := range r {
			assert.Nil(t, e)
		}
	}
}

func TestScore_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Score
		want string
	}{
		{"cp", Score{CP: 34}, `{"cp":34}`},
		{"mate", Score{IsMate: true, Mate: -3}, `{"mate":-3}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))

			var got Score
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tc.in, got)
		})
	}
}

func TestInfoRecord_JSONOmitsAbsentFields(t *testing.T) {
	r := InfoRecord{}
	r.Depth = lang.Some(12)
	r.PV = lang.Some("e2e4 e7e5")

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"depth":12,"pv":"e2e4 e7e5"}`, string(data))

	var got InfoRecord
	require.NoError(t, json.Unmarshal(data, &got))

	depth, ok := got.Depth.V()
	require.True(t, ok)
	assert.Equal(t, 12, depth)

	_, ok = got.NPS.V()
	assert.False(t, ok)
}

func TestWork_JSONOmitsAbsentClock(t *testing.T) {
	w := Work{ID: "1", Type: Move}
	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","type":"move"}`, string(data))

	w.Clock = lang.Some(Clock{WhiteTimeCS: 100, BlackTimeCS: 200, IncS: 5})
	data, err = json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","type":"move","clock":{"wtime":100,"btime":200,"inc":5}}`, string(data))
}
