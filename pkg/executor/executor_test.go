package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/herohde/uciworker/pkg/jobapi"
	"github.com/herohde/uciworker/pkg/uci"
	"github.com/seekerror/stdlib/pkg/lang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngineDriver records every call the executor flows make, and replays a
// scripted sequence of Go() results, so Bestmove/Analysis can be driven
// end-to-end without a real engine subprocess.
type fakeEngineDriver struct {
	variants  []string
	options   []string
	positions []string
	goParams  []uci.GoParams
	goResults []goResult
	killed    bool

	goDelay time.Duration
}

type goResult struct {
	best string
	info jobapi.InfoRecord
	err  error
}

func (f *fakeEngineDriver) Info() jobapi.EngineInfo { return jobapi.EngineInfo{} }

func (f *fakeEngineDriver) SetVariant(ctx context.Context, variant string) error {
	f.variants = append(f.variants, variant)
	return nil
}

func (f *fakeEngineDriver) SetOption(ctx context.Context, name, value string) error {
	f.options = append(f.options, name+"="+value)
	return nil
}

func (f *fakeEngineDriver) Sync(ctx context.Context) error    { return nil }
func (f *fakeEngineDriver) NewGame(ctx context.Context) error { return nil }

func (f *fakeEngineDriver) SetPosition(ctx context.Context, fen string, moves []string) error {
	f.positions = append(f.positions, fen+"|"+strings.Join(moves, ","))
	return nil
}

func (f *fakeEngineDriver) Go(ctx context.Context, p uci.GoParams, progress chan<- jobapi.InfoRecord) (string, jobapi.InfoRecord, error) {
	f.goParams = append(f.goParams, p)
	if f.goDelay > 0 {
		time.Sleep(f.goDelay)
	}
	i := len(f.goParams) - 1
	if i < len(f.goResults) {
		r := f.goResults[i]
		return r.best, r.info, r.err
	}
	return "", jobapi.InfoRecord{}, nil
}

func (f *fakeEngineDriver) Kill() { f.killed = true }

func TestSkillLevel(t *testing.T) {
	tests := []struct {
		lvl  int
		want int
	}{
		{1, 0},
		{2, 3},
		{3, 6},
		{4, 9},
		{5, 11},
		{6, 14},
		{7, 17},
		{8, 20},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, skillLevel(tc.lvl))
	}
}

func TestMovetimeForLevel_SingleThread(t *testing.T) {
	for lvl := 1; lvl <= 8; lvl++ {
		assert.Equal(t, lvlMovetimesMS[lvl-1], movetimeForLevel(lvl, 1))
	}
}

func TestMovetimeForLevel_ScalesDownWithThreads(t *testing.T) {
	single := movetimeForLevel(8, 1)
	multi := movetimeForLevel(8, 4)
	assert.Less(t, multi, single)
}

func TestValidatePly_DropsExorbitantNPS(t *testing.T) {
	info := jobapi.InfoRecord{NPS: lang.Some(int64(200_000_000))}
	validatePly(context.Background(), &info)

	_, ok := info.NPS.V()
	assert.False(t, ok)
}

func TestValidatePly_KeepsPlausibleNPS(t *testing.T) {
	info := jobapi.InfoRecord{NPS: lang.Some(int64(2_000_000))}
	validatePly(context.Background(), &info)

	nps, ok := info.NPS.V()
	assert.True(t, ok)
	assert.EqualValues(t, 2_000_000, nps)
}

func TestValidatePly_LowTimeDoesNotMutateRecord(t *testing.T) {
	info := jobapi.InfoRecord{
		Score:  lang.Some(jobapi.Score{CP: 20}),
		TimeMS: lang.Some(10),
	}
	before := info
	validatePly(context.Background(), &info)
	assert.Equal(t, before, info, "low-time check only logs, it must not alter the record")
}

// TestBestmove_MoveJobLevel4_BuildsExpectedGoCommandAndSkillLevel is scenario
// S2: a level-4 move job on one thread must produce the exact "go" line and
// Skill Level option named by the spec.
func TestBestmove_MoveJobLevel4_BuildsExpectedGoCommandAndSkillLevel(t *testing.T) {
	driver := &fakeEngineDriver{
		goResults: []goResult{{best: "e2e4"}},
	}
	job := jobapi.Job{
		Work: jobapi.Work{
			ID: "x", Type: jobapi.Move, Level: 4,
			Clock: lang.Some(jobapi.Clock{WhiteTimeCS: 6000, BlackTimeCS: 6000, IncS: 0}),
		},
		Variant:  "standard",
		Position: "<fen>",
		Moves:    "e2e4 e7e5",
	}

	result, _, err := Bestmove(context.Background(), driver, 1, job)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", result.BestMove)

	require.Len(t, driver.goParams, 1)
	assert.Equal(t, "go movetime 200 depth 3 wtime 60000 btime 60000 winc 0 binc 0",
		uci.BuildGoCommand(driver.goParams[0]))

	assert.Contains(t, driver.options, "Skill Level=9")
	assert.Equal(t, []string{"standard"}, driver.variants)
	assert.Equal(t, []string{"<fen>|e2e4,e7e5"}, driver.positions)
}

// TestAnalysis_TwoMoves_DefaultNodes is scenario S3: analyzing a 2-move game
// with no node budget specified must search plies 2, 1, 0 in that order,
// each with the default node budget and movetime cap, and return exactly 3
// filled-in entries.
func TestAnalysis_TwoMoves_DefaultNodes(t *testing.T) {
	driver := &fakeEngineDriver{
		goResults: []goResult{
			{info: jobapi.InfoRecord{Depth: lang.Some(10)}},
			{info: jobapi.InfoRecord{Depth: lang.Some(9)}},
			{info: jobapi.InfoRecord{Depth: lang.Some(8)}},
		},
	}
	job := jobapi.Job{Variant: "standard", Position: "<fen>", Moves: "e2e4 e7e5"}

	result, err := Analysis(context.Background(), driver, job, nil)
	require.NoError(t, err)
	require.Len(t, result, 3)
	for _, r := range result {
		assert.NotNil(t, r)
	}

	assert.Equal(t, []string{
		"<fen>|e2e4,e7e5",
		"<fen>|e2e4",
		"<fen>|",
	}, driver.positions)

	require.Len(t, driver.goParams, 3)
	for _, p := range driver.goParams {
		nodes, ok := p.Nodes.V()
		require.True(t, ok)
		assert.EqualValues(t, 3_500_000, nodes)

		mt, ok := p.MoveTimeMS.V()
		require.True(t, ok)
		assert.Equal(t, 4000, mt)
	}
}

// TestAnalysis_ProgressTick is scenario S4: a progress callback fires with a
// partially-filled result once wall time crosses progressReportInterval
// between plies, and again with the fully-filled result at the end.
func TestAnalysis_ProgressTick(t *testing.T) {
	orig := progressReportInterval
	progressReportInterval = 10 * time.Millisecond
	defer func() { progressReportInterval = orig }()

	driver := &fakeEngineDriver{
		goDelay: 15 * time.Millisecond,
		goResults: []goResult{
			{info: jobapi.InfoRecord{Depth: lang.Some(10)}},
			{info: jobapi.InfoRecord{Depth: lang.Some(9)}},
			{info: jobapi.InfoRecord{Depth: lang.Some(8)}},
		},
	}
	job := jobapi.Job{Variant: "standard", Position: "<fen>", Moves: "e2e4 e7e5"}

	var progressCalls []jobapi.AnalysisResult
	_, err := Analysis(context.Background(), driver, job, func(partial jobapi.AnalysisResult) {
		cp := make(jobapi.AnalysisResult, len(partial))
		copy(cp, partial)
		progressCalls = append(progressCalls, cp)
	})
	require.NoError(t, err)

	require.NotEmpty(t, progressCalls, "at least one progress tick must fire once the interval elapses")

	final := progressCalls[len(progressCalls)-1]
	require.Len(t, final, 3)
	for _, r := range final {
		assert.NotNil(t, r)
	}

	first := progressCalls[0]
	incomplete := false
	for _, r := range first {
		if r == nil {
			incomplete = true
		}
	}
	if len(progressCalls) > 1 {
		assert.True(t, incomplete, "an intermediate progress tick should observe a partially-filled result")
	}
}
