package game

import "fmt"

// AtBatResult is the outcome of one plate appearance.
type AtBatResult string

const (
	Single       AtBatResult = "single"
	Double       AtBatResult = "double"
	Triple       AtBatResult = "triple"
	HomeRun      AtBatResult = "home_run"
	Walk         AtBatResult = "walk"
	HitByPitch   AtBatResult = "hit_by_pitch"
	Strikeout    AtBatResult = "strikeout"
	GroundOut    AtBatResult = "ground_out"
	FlyOut       AtBatResult = "fly_out"
	SacrificeFly AtBatResult = "sacrifice_fly"
)

// AtBatResults lists every result in display order.
var AtBatResults = []AtBatResult{
	Single, Double, Triple, HomeRun, Walk, HitByPitch,
	Strikeout, GroundOut, FlyOut, SacrificeFly,
}

// Valid reports whether r is a known result.
func (r AtBatResult) Valid() bool {
	for _, v := range AtBatResults {
		if r == v {
			return true
		}
	}
	return false
}

// IsOut reports whether r puts the batter out.
func (r AtBatResult) IsOut() bool {
	switch r {
	case Strikeout, GroundOut, FlyOut, SacrificeFly:
		return true
	}
	return false
}

func (r AtBatResult) bases() int {
	switch r {
	case Single:
		return 1
	case Double:
		return 2
	case Triple:
		return 3
	case HomeRun:
		return 4
	}
	return 0
}

// Bases holds the runner id on first, second and third. Empty means vacant.
type Bases [3]string

// Empty reports whether no runner is on base.
func (b Bases) Empty() bool {
	return b == Bases{}
}

// Occupied returns the number of runners on base.
func (b Bases) Occupied() int {
	n := 0
	for _, id := range b {
		if id != "" {
			n++
		}
	}
	return n
}

// Play is the computed effect of an at-bat.
type Play struct {
	Bases   Bases
	Outs    int
	Runs    int
	Scorers []string
}

// Advance applies the runner model to one at-bat.
//
// Hits move every runner, and the batter, forward by the hit's bases.
// Walks and hit-by-pitch force runners ahead only when the base behind them
// is taken. A sacrifice fly scores the runner from third. Other outs hold
// the runners. Runs on a play that makes the last out do not count.
func Advance(bases Bases, batterID string, result AtBatResult, outs, outsPerHalf int) (Play, error) {
	if !result.Valid() {
		return Play{}, fmt.Errorf("%w: %q", ErrInvalidResult, result)
	}
	if outs >= outsPerHalf {
		return Play{}, ErrHalfInningOver
	}

	p := Play{Bases: bases, Outs: outs}
	score := func(id string) {
		p.Runs++
		p.Scorers = append(p.Scorers, id)
	}

	switch result {
	case Single, Double, Triple, HomeRun:
		n := result.bases()
		var next Bases
		for i := 2; i >= 0; i-- {
			if bases[i] == "" {
				continue
			}
			if i+n >= 3 {
				score(bases[i])
			} else {
				next[i+n] = bases[i]
			}
		}
		if n == 4 {
			score(batterID)
		} else {
			next[n-1] = batterID
		}
		p.Bases = next

	case Walk, HitByPitch:
		if bases[0] != "" {
			if bases[1] != "" {
				if bases[2] != "" {
					score(bases[2])
				}
				p.Bases[2] = bases[1]
			}
			p.Bases[1] = bases[0]
		}
		p.Bases[0] = batterID

	case SacrificeFly:
		p.Outs++
		if bases[2] != "" && p.Outs < outsPerHalf {
			score(bases[2])
			p.Bases[2] = ""
		}

	default:
		p.Outs++
	}

	if p.Outs >= outsPerHalf {
		p.Runs = 0
		p.Scorers = nil
	}
	return p, nil
}
