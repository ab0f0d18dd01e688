package uci

import (
	"strconv"
	"strings"

	"github.com/herohde/uciworker/pkg/jobapi"
	"github.com/seekerror/stdlib/pkg/lang"
)

// infoParam is the small set of parser states while tokenizing one "info" line.
// See design note 9: tokenize once, branch on a state enum, never reparse
// parameter keywords while in the "string" state.
type infoParam int

const (
	paramNone infoParam = iota
	paramDepth
	paramSelDepth
	paramTime
	paramNodes
	paramMultiPV
	paramCurrMove
	paramCurrMoveNumber
	paramHashFull
	paramNPS
	paramTBHits
	paramCPULoad
	paramRefutation
	paramCurrLine
	paramString
	paramPV
	paramScore
)

// intParams are keywords whose next token (and every further token, until
// another keyword) is an integer.
var intParams = map[string]infoParam{
	"depth":          paramDepth,
	"seldepth":       paramSelDepth,
	"time":           paramTime,
	"nodes":          paramNodes,
	"multipv":        paramMultiPV,
	"currmovenumber": paramCurrMoveNumber,
	"hashfull":       paramHashFull,
	"nps":            paramNPS,
	"tbhits":         paramTBHits,
	"cpuload":        paramCPULoad,
}

// strParams are keywords whose following tokens, space-joined, are a string
// value (until another keyword switches state).
var strParams = map[string]infoParam{
	"currmove":   paramCurrMove,
	"refutation": paramRefutation,
	"currline":   paramCurrLine,
	"string":     paramString,
}

func isIntParam(p infoParam) bool {
	switch p {
	case paramDepth, paramSelDepth, paramTime, paramNodes, paramMultiPV,
		paramCurrMoveNumber, paramHashFull, paramNPS, paramTBHits, paramCPULoad:
		return true
	default:
		return false
	}
}

// ApplyInfoLine updates info from the tokens of one "info" line (the line
// with the leading "info" token already stripped). Each key holds the most
// recent line's value; pv is overwritten only for multipv==1 or absent;
// bound scores (lowerbound/upperbound) are ignored.
func ApplyInfoLine(info *jobapi.InfoRecord, rest string) {
	state := paramNone

	var scoreKind string
	var scoreValue int
	var scoreValueSet bool
	var scoreBound bool

	for _, tok := range strings.Split(rest, " ") {
		if tok == "" {
			continue
		}

		if state == paramString {
			// Once in "string" state, every remaining token belongs to the
			// string, including ones that would otherwise be keywords.
			appendOptString(&info.String, tok)
			continue
		}

		switch {
		case tok == "score":
			state = paramScore
			scoreKind, scoreValueSet, scoreBound = "", false, false

		case tok == "pv":
			state = paramPV
			if mv, ok := info.MultiPV.V(); !ok || mv == 1 {
				info.PV = lang.Optional[string]{}
			}

		case intParams[tok] != paramNone:
			state = intParams[tok]
			clearIntParam(info, state)

		case strParams[tok] != paramNone:
			state = strParams[tok]
			clearStrParam(info, state)

		case isIntParam(state):
			n, err := strconv.Atoi(tok)
			if err == nil {
				setIntParam(info, state, int64(n))
			}

		case state == paramScore:
			switch tok {
			case "cp", "mate":
				scoreKind = tok
				scoreValueSet = false
			case "lowerbound", "upperbound":
				scoreBound = true
			default:
				if n, err := strconv.Atoi(tok); err == nil {
					scoreValue = n
					scoreValueSet = true
				}
			}

		case state != paramPV:
			appendStrParam(info, state, tok)

		default:
			// state == paramPV: appended for the primary line (multipv 1 or
			// absent); for any other multipv the token is silently discarded,
			// matching the source's behavior of never accumulating a
			// non-primary pv.
			if mv, ok := info.MultiPV.V(); !ok || mv == 1 {
				appendOptString(&info.PV, tok)
			}
		}
	}

	if scoreKind != "" && scoreValueSet && !scoreBound {
		sc := jobapi.Score{IsMate: scoreKind == "mate"}
		if sc.IsMate {
			sc.Mate = scoreValue
		} else {
			sc.CP = scoreValue
		}
		info.Score = lang.Some(sc)
	}
}

func appendOptString(opt *lang.Optional[string], tok string) {
	if cur, ok := opt.V(); ok {
		*opt = lang.Some(cur + " " + tok)
	} else {
		*opt = lang.Some(tok)
	}
}

func clearIntParam(info *jobapi.InfoRecord, p infoParam) {
	switch p {
	case paramDepth:
		info.Depth = lang.Optional[int]{}
	case paramSelDepth:
		info.SelDepth = lang.Optional[int]{}
	case paramTime:
		info.TimeMS = lang.Optional[int]{}
	case paramNodes:
		info.Nodes = lang.Optional[int64]{}
	case paramMultiPV:
		info.MultiPV = lang.Optional[int]{}
	case paramCurrMoveNumber:
		info.CurrMoveNumber = lang.Optional[int]{}
	case paramHashFull:
		info.HashFull = lang.Optional[int]{}
	case paramNPS:
		info.NPS = lang.Optional[int64]{}
	case paramTBHits:
		info.TBHits = lang.Optional[int64]{}
	case paramCPULoad:
		info.CPULoad = lang.Optional[int]{}
	}
}

func setIntParam(info *jobapi.InfoRecord, p infoParam, v int64) {
	switch p {
	case paramDepth:
		info.Depth = lang.Some(int(v))
	case paramSelDepth:
		info.SelDepth = lang.Some(int(v))
	case paramTime:
		info.TimeMS = lang.Some(int(v))
	case paramNodes:
		info.Nodes = lang.Some(v)
	case paramMultiPV:
		info.MultiPV = lang.Some(int(v))
	case paramCurrMoveNumber:
		info.CurrMoveNumber = lang.Some(int(v))
	case paramHashFull:
		info.HashFull = lang.Some(int(v))
	case paramNPS:
		info.NPS = lang.Some(v)
	case paramTBHits:
		info.TBHits = lang.Some(v)
	case paramCPULoad:
		info.CPULoad = lang.Some(int(v))
	}
}

func clearStrParam(info *jobapi.InfoRecord, p infoParam) {
	switch p {
	case paramCurrMove:
		info.CurrMove = lang.Optional[string]{}
	case paramRefutation:
		info.Refutation = lang.Optional[string]{}
	case paramCurrLine:
		info.CurrLine = lang.Optional[string]{}
	case paramString:
		info.String = lang.Optional[string]{}
	}
}

func appendStrParam(info *jobapi.InfoRecord, p infoParam, tok string) {
	switch p {
	case paramCurrMove:
		appendOptString(&info.CurrMove, tok)
	case paramRefutation:
		appendOptString(&info.Refutation, tok)
	case paramCurrLine:
		appendOptString(&info.CurrLine, tok)
	case paramString:
		appendOptString(&info.String, tok)
	}
}
