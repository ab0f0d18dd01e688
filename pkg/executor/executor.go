// Package executor drives one job to completion against an engine driver:
// the Move flow (pick a move at a playing strength) and the Analysis flow
// (evaluate every ply of a game), matching the original client's bestmove()
// and analysis() behavior.
package executor

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/herohde/uciworker/pkg/jobapi"
	"github.com/herohde/uciworker/pkg/logx"
	"github.com/herohde/uciworker/pkg/uci"
	"github.com/seekerror/stdlib/pkg/lang"
)

// EngineDriver is the subset of *uci.Driver the executor needs. Accepting it
// as an interface lets the Move/Analysis flows be tested without a real
// engine subprocess.
type EngineDriver interface {
	Info() jobapi.EngineInfo
	SetVariant(ctx context.Context, variant string) error
	SetOption(ctx context.Context, name, value string) error
	Sync(ctx context.Context) error
	NewGame(ctx context.Context) error
	SetPosition(ctx context.Context, fen string, moves []string) error
	Go(ctx context.Context, p uci.GoParams, progress chan<- jobapi.InfoRecord) (string, jobapi.InfoRecord, error)
	Kill()
}

// lvlMovetimesMS and lvlDepths are indexed by level-1 (levels run 1..8) and
// set the thinking budget for the Move flow at each playing strength.
var (
	lvlMovetimesMS = [8]int{50, 100, 150, 200, 300, 400, 500, 1000}
	lvlDepths      = [8]int{1, 1, 2, 3, 5, 8, 13, 22}
)

// progressReportInterval matches the original client's analysis progress
// cadence. A var, not a const, so tests can shrink it instead of sleeping
// for the real 3s between assertions.
var progressReportInterval = 3 * time.Second

// analysisNodesDefault is used when a job does not specify a node budget.
const analysisNodesDefault = 3_500_000

// analysisMovetimeMS bounds how long the engine may spend per ply during
// analysis, in addition to the node budget.
const analysisMovetimeMS = 4000

// skillLevel maps a 1..8 playing level to Stockfish's 0..20 Skill Level option.
func skillLevel(lvl int) int {
	return int(math.Round(float64(lvl-1) * 20.0 / 7.0))
}

// movetimeForLevel scales the level's base thinking time down as thread
// count grows, matching the original's diminishing-returns heuristic.
func movetimeForLevel(lvl, threads int) int {
	base := float64(lvlMovetimesMS[lvl-1])
	return int(math.Round(base / (float64(threads) * math.Pow(0.9, float64(threads-1)))))
}

// Bestmove runs the Move flow: pick one move for job at its requested level.
func Bestmove(ctx context.Context, driver EngineDriver, threads int, job jobapi.Job) (jobapi.MoveResult, jobapi.InfoRecord, error) {
	lvl := job.Work.Level
	if lvl < 1 {
		lvl = 1
	}
	if lvl > 8 {
		lvl = 8
	}

	if err := driver.SetVariant(ctx, job.EffectiveVariant()); err != nil {
		return jobapi.MoveResult{}, jobapi.InfoRecord{}, err
	}
	if err := driver.SetOption(ctx, "Skill Level", strconv.Itoa(skillLevel(lvl))); err != nil {
		return jobapi.MoveResult{}, jobapi.InfoRecord{}, err
	}
	if err := driver.Sync(ctx); err != nil {
		return jobapi.MoveResult{}, jobapi.InfoRecord{}, err
	}

	if err := driver.SetPosition(ctx, job.Position, job.MoveList()); err != nil {
		return jobapi.MoveResult{}, jobapi.InfoRecord{}, err
	}
	if err := driver.Sync(ctx); err != nil {
		return jobapi.MoveResult{}, jobapi.InfoRecord{}, err
	}

	params := uci.GoParams{
		MoveTimeMS: lang.Some(movetimeForLevel(lvl, threads)),
		Depth:      lang.Some(lvlDepths[lvl-1]),
	}
	if clock, ok := job.Work.Clock.V(); ok {
		params.WTimeMS = lang.Some(clock.WhiteTimeCS * 10)
		params.BTimeMS = lang.Some(clock.BlackTimeCS * 10)
		params.WIncMS = lang.Some(clock.IncS * 1000)
		params.BIncMS = lang.Some(clock.IncS * 1000)
	}

	best, info, err := driver.Go(ctx, params, nil)
	if err != nil {
		return jobapi.MoveResult{}, jobapi.InfoRecord{}, err
	}
	if best == "(none)" {
		best = ""
	}
	return jobapi.MoveResult{BestMove: best}, info, nil
}

// AnalysisProgress is invoked periodically (and once at the end) with the
// partially-filled result, for the caller to report upstream.
type AnalysisProgress func(jobapi.AnalysisResult)

// Analysis runs the Analysis flow: evaluate every ply from the end of the
// game back to the start, reporting progress before a ply whenever
// progressReportInterval has passed since the last report, and once more
// with the complete result at the end.
func Analysis(ctx context.Context, driver EngineDriver, job jobapi.Job, onProgress AnalysisProgress) (jobapi.AnalysisResult, error) {
	variant := job.EffectiveVariant()
	moves := job.MoveList()

	result := jobapi.NewAnalysisResult(len(moves))

	if err := driver.SetVariant(ctx, variant); err != nil {
		return nil, err
	}
	if err := driver.SetOption(ctx, "Skill Level", "20"); err != nil {
		return nil, err
	}
	if err := driver.Sync(ctx); err != nil {
		return nil, err
	}
	if err := driver.NewGame(ctx); err != nil {
		return nil, err
	}

	nodes := job.NodesBudget()
	if nodes == 0 {
		nodes = analysisNodesDefault
	}

	lastReport := time.Now()
	for ply := len(moves); ply >= 0; ply-- {
		if onProgress != nil && time.Since(lastReport) >= progressReportInterval {
			onProgress(result)
			lastReport = time.Now()
		}

		if err := driver.SetPosition(ctx, job.Position, moves[0:ply]); err != nil {
			return nil, err
		}
		if err := driver.Sync(ctx); err != nil {
			return nil, err
		}

		params := uci.GoParams{
			MoveTimeMS: lang.Some(analysisMovetimeMS),
			Nodes:      lang.Some(nodes),
		}
		_, info, err := driver.Go(ctx, params, nil)
		if err != nil {
			return nil, err
		}

		validatePly(ctx, &info)
		result[ply] = &info
	}

	if onProgress != nil {
		onProgress(result)
	}
	return result, nil
}

// validatePly applies the original client's two sanity checks to a freshly
// completed info record: flag suspiciously fast non-mate scores, and drop
// implausible nps readings rather than reporting them upstream.
func validatePly(ctx context.Context, info *jobapi.InfoRecord) {
	if sc, ok := info.Score.V(); ok && !sc.IsMate {
		if t, ok := info.TimeMS.V(); ok && t < 100 {
			logx.Warningf(ctx, "Very low time reported: %v ms", t)
		}
	}
	if nps, ok := info.NPS.V(); ok && nps >= 100_000_000 {
		logx.Warningf(ctx, "Dropping exorbitant nps: %v", nps)
		info.NPS = lang.Optional[int64]{}
	}
}
