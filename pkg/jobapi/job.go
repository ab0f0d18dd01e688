// Package jobapi contains the wire types exchanged with the job server: jobs,
// engine identification, search results and the envelope every request carries.
package jobapi

import (
	"encoding/json"
	"fmt"

	"github.com/seekerror/stdlib/pkg/lang"
)

// WorkType is the kind of work a Job asks for.
type WorkType string

const (
	Analysis WorkType = "analysis"
	Move     WorkType = "move"
)

// Clock holds the remaining time budget for a Move job.
type Clock struct {
	WhiteTimeCS int `json:"wtime"`
	BlackTimeCS int `json:"btime"`
	IncS        int `json:"inc"`
}

// Work is the part of a Job describing what to compute.
type Work struct {
	ID    string
	Type  WorkType
	Level int
	Clock lang.Optional[Clock]
}

type workWire struct {
	ID    string   `json:"id"`
	Type  WorkType `json:"type"`
	Level int      `json:"level,omitempty"`
	Clock *Clock   `json:"clock,omitempty"`
}

// MarshalJSON encodes Work, representing an absent Clock as a missing field.
func (w Work) MarshalJSON() ([]byte, error) {
	clock, _ := w.Clock.V()
	wire := workWire{ID: w.ID, Type: w.Type, Level: w.Level}
	if _, ok := w.Clock.V(); ok {
		wire.Clock = &clock
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes Work, leaving Clock absent when the field is missing.
func (w *Work) UnmarshalJSON(data []byte) error {
	var wire workWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	w.ID, w.Type, w.Level = wire.ID, wire.Type, wire.Level
	if wire.Clock != nil {
		w.Clock = lang.Some(*wire.Clock)
	} else {
		w.Clock = lang.Optional[Clock]{}
	}
	return nil
}

// Job is an immutable unit of work returned by the server.
type Job struct {
	Work     Work
	GameID   string
	Variant  string
	Position string
	Moves    string
	Nodes    lang.Optional[int64]
}

type jobWire struct {
	Work     Work   `json:"work"`
	GameID   string `json:"game_id"`
	Variant  string `json:"variant"`
	Position string `json:"position"`
	Moves    string `json:"moves"`
	Nodes    *int64 `json:"nodes,omitempty"`
}

// MarshalJSON encodes Job, representing an absent Nodes budget as a missing field.
func (j Job) MarshalJSON() ([]byte, error) {
	wire := jobWire{Work: j.Work, GameID: j.GameID, Variant: j.Variant, Position: j.Position, Moves: j.Moves}
	if n, ok := j.Nodes.V(); ok {
		wire.Nodes = &n
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes Job, leaving Nodes absent when the field is missing.
func (j *Job) UnmarshalJSON(data []byte) error {
	var wire jobWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	j.Work, j.GameID, j.Variant, j.Position, j.Moves = wire.Work, wire.GameID, wire.Variant, wire.Position, wire.Moves
	if wire.Nodes != nil {
		j.Nodes = lang.Some(*wire.Nodes)
	} else {
		j.Nodes = lang.Optional[int64]{}
	}
	return nil
}

// MoveList splits Moves on spaces. An empty Moves field yields an empty list,
// never a single empty-string element.
func (j Job) MoveList() []string {
	if j.Moves == "" {
		return nil
	}
	var out []string
	for _, m := range splitSpace(j.Moves) {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func splitSpace(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// EffectiveVariant returns job.Variant, defaulting to "standard".
func (j Job) EffectiveVariant() string {
	if j.Variant == "" {
		return "standard"
	}
	return j.Variant
}

// NodesBudget returns job.Nodes, defaulting to 3,500,000.
func (j Job) NodesBudget() int64 {
	if v, ok := j.Nodes.V(); ok {
		return v
	}
	return 3_500_000
}

// EngineInfo is the engine identification collected during handshake, plus the
// UCI options applied at worker startup. Author is intentionally absent:
// it is discarded from the handshake result before the envelope is built.
type EngineInfo struct {
	Name    string            `json:"name,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// Score is either a centipawn or a mate-in-N score. Exactly one of CP/Mate
// is meaningful; IsMate reports which.
type Score struct {
	IsMate bool
	CP     int
	Mate   int
}

func (s Score) String() string {
	if s.IsMate {
		return fmt.Sprintf("mate %v", s.Mate)
	}
	return fmt.Sprintf("cp %v", s.CP)
}

// MarshalJSON encodes a Score as {"cp": n} or {"mate": n}, never both.
func (s Score) MarshalJSON() ([]byte, error) {
	if s.IsMate {
		return json.Marshal(struct {
			Mate int `json:"mate"`
		}{s.Mate})
	}
	return json.Marshal(struct {
		CP int `json:"cp"`
	}{s.CP})
}

// UnmarshalJSON decodes a Score, detecting the kind from whichever field is present.
func (s *Score) UnmarshalJSON(data []byte) error {
	var wire struct {
		CP   *int `json:"cp"`
		Mate *int `json:"mate"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Mate != nil {
		*s = Score{IsMate: true, Mate: *wire.Mate}
	} else if wire.CP != nil {
		*s = Score{CP: *wire.CP}
	}
	return nil
}

// InfoRecord is the accumulated result of one search invocation: the final
// value of every UCI "info" parameter seen, finalized at "bestmove".
type InfoRecord struct {
	BestMove lang.Optional[string]

	Depth          lang.Optional[int]
	SelDepth       lang.Optional[int]
	TimeMS         lang.Optional[int]
	Nodes          lang.Optional[int64]
	NPS            lang.Optional[int64]
	TBHits         lang.Optional[int64]
	HashFull       lang.Optional[int]
	MultiPV        lang.Optional[int]
	CPULoad        lang.Optional[int]
	CurrMoveNumber lang.Optional[int]

	CurrMove   lang.Optional[string]
	Refutation lang.Optional[string]
	CurrLine   lang.Optional[string]
	String     lang.Optional[string]

	PV lang.Optional[string]

	Score lang.Optional[Score]
}

type infoRecordWire struct {
	Depth          *int    `json:"depth,omitempty"`
	SelDepth       *int    `json:"seldepth,omitempty"`
	TimeMS         *int    `json:"time,omitempty"`
	Nodes          *int64  `json:"nodes,omitempty"`
	NPS            *int64  `json:"nps,omitempty"`
	TBHits         *int64  `json:"tbhits,omitempty"`
	HashFull       *int    `json:"hashfull,omitempty"`
	MultiPV        *int    `json:"multipv,omitempty"`
	CPULoad        *int    `json:"cpuload,omitempty"`
	CurrMoveNumber *int    `json:"currmovenumber,omitempty"`
	CurrMove       *string `json:"currmove,omitempty"`
	Refutation     *string `json:"refutation,omitempty"`
	CurrLine       *string `json:"currline,omitempty"`
	String         *string `json:"string,omitempty"`
	PV             *string `json:"pv,omitempty"`
	Score          *Score  `json:"score,omitempty"`
}

// MarshalJSON encodes InfoRecord with every unset field omitted from the
// output, rather than serialized as a zero value. BestMove is never part of
// the wire info record; it is reported only through MoveResult/info's caller.
func (r InfoRecord) MarshalJSON() ([]byte, error) {
	var wire infoRecordWire
	if v, ok := r.Depth.V(); ok {
		wire.Depth = &v
	}
	if v, ok := r.SelDepth.V(); ok {
		wire.SelDepth = &v
	}
	if v, ok := r.TimeMS.V(); ok {
		wire.TimeMS = &v
	}
	if v, ok := r.Nodes.V(); ok {
		wire.Nodes = &v
	}
	if v, ok := r.NPS.V(); ok {
		wire.NPS = &v
	}
	if v, ok := r.TBHits.V(); ok {
		wire.TBHits = &v
	}
	if v, ok := r.HashFull.V(); ok {
		wire.HashFull = &v
	}
	if v, ok := r.MultiPV.V(); ok {
		wire.MultiPV = &v
	}
	if v, ok := r.CPULoad.V(); ok {
		wire.CPULoad = &v
	}
	if v, ok := r.CurrMoveNumber.V(); ok {
		wire.CurrMoveNumber = &v
	}
	if v, ok := r.CurrMove.V(); ok {
		wire.CurrMove = &v
	}
	if v, ok := r.Refutation.V(); ok {
		wire.Refutation = &v
	}
	if v, ok := r.CurrLine.V(); ok {
		wire.CurrLine = &v
	}
	if v, ok := r.String.V(); ok {
		wire.String = &v
	}
	if v, ok := r.PV.V(); ok {
		wire.PV = &v
	}
	if v, ok := r.Score.V(); ok {
		wire.Score = &v
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes InfoRecord, leaving every missing field absent.
func (r *InfoRecord) UnmarshalJSON(data []byte) error {
	var wire infoRecordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = InfoRecord{}
	if wire.Depth != nil {
		r.Depth = lang.Some(*wire.Depth)
	}
	if wire.SelDepth != nil {
		r.SelDepth = lang.Some(*wire.SelDepth)
	}
	if wire.TimeMS != nil {
		r.TimeMS = lang.Some(*wire.TimeMS)
	}
	if wire.Nodes != nil {
		r.Nodes = lang.Some(*wire.Nodes)
	}
	if wire.NPS != nil {
		r.NPS = lang.Some(*wire.NPS)
	}
	if wire.TBHits != nil {
		r.TBHits = lang.Some(*wire.TBHits)
	}
	if wire.HashFull != nil {
		r.HashFull = lang.Some(*wire.HashFull)
	}
	if wire.MultiPV != nil {
		r.MultiPV = lang.Some(*wire.MultiPV)
	}
	if wire.CPULoad != nil {
		r.CPULoad = lang.Some(*wire.CPULoad)
	}
	if wire.CurrMoveNumber != nil {
		r.CurrMoveNumber = lang.Some(*wire.CurrMoveNumber)
	}
	if wire.CurrMove != nil {
		r.CurrMove = lang.Some(*wire.CurrMove)
	}
	if wire.Refutation != nil {
		r.Refutation = lang.Some(*wire.Refutation)
	}
	if wire.CurrLine != nil {
		r.CurrLine = lang.Some(*wire.CurrLine)
	}
	if wire.String != nil {
		r.String = lang.Some(*wire.String)
	}
	if wire.PV != nil {
		r.PV = lang.Some(*wire.PV)
	}
	if wire.Score != nil {
		r.Score = lang.Some(*wire.Score)
	}
	return nil
}

// MoveResult is the payload of a completed Move job.
type MoveResult struct {
	BestMove string `json:"bestmove"`
}

// AnalysisResult is the payload of a completed (or in-progress) Analysis job:
// one InfoRecord per ply, indexed from the starting position (ply 0) to the
// final position (ply len(moves)). A nil entry means that ply has not been
// searched yet.
type AnalysisResult []*InfoRecord

// NewAnalysisResult returns an AnalysisResult of length n+1 with every entry
// nil, ready to be filled in reverse ply order.
func NewAnalysisResult(numMoves int) AnalysisResult {
	return make(AnalysisResult, numMoves+1)
}

// FishnetInfo is the client-identification block of the Envelope.
type FishnetInfo struct {
	Version string `json:"version"`
	Runtime string `json:"runtime"`
	APIKey  string `json:"apikey"`
}

// Envelope is the JSON object attached to every outbound request.
type Envelope struct {
	Fishnet   FishnetInfo `json:"fishnet"`
	Stockfish EngineInfo  `json:"stockfish"`

	Analysis AnalysisResult `json:"analysis,omitempty"`
	Move     *MoveResult    `json:"move,omitempty"`
}
