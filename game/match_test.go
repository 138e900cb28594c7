package game

import (
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/testing/bdd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = MatchCreated{
	MatchID:       "m1",
	AwayTeam:      "Visitors",
	HomeTeam:      "Owls",
	ManagedSide:   Home,
	Rules:         DefaultRules(),
	AwayLineupID:  "la",
	HomeLineupID:  "lh",
	InningStateID: "is",
	CreatedAt:     time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC),
}

var started = MatchStarted{MatchID: "m1"}

func TestMatchState_Create(t *testing.T) {
	m := NewMatchState("m1")
	bdd.Given(t, m).
		When(func() error {
			return m.Create(MatchSetup{
				AwayTeam: "Visitors", HomeTeam: "Owls", ManagedSide: Home, Rules: DefaultRules(),
				AwayLineupID: "la", HomeLineupID: "lh", InningStateID: "is", CreatedAt: created.CreatedAt,
			})
		}).
		Then(created).
		ThenState(func() {
			assert.Equal(t, StatusNotStarted, m.Status())
			assert.Equal(t, "lh", m.LineupID(Home))
			assert.Equal(t, MatchStateKind, m.AggregateType())
		})

	m = NewMatchState("m1")
	bdd.Given(t, m, created).
		When(func() error { return m.Create(MatchSetup{Rules: DefaultRules()}) }).
		ThenError(ErrMatchAlreadyCreated)

	m = NewMatchState("m2")
	bdd.Given(t, m).
		When(func() error { return m.Create(MatchSetup{Rules: Rules{Innings: 0, OutsPerHalf: 3}}) }).
		ThenErrorContains("innings must be at least 1")
}

func TestMatchState_Start(t *testing.T) {
	m := NewMatchState("m1")
	bdd.Given(t, m, created).
		When(m.Start).
		Then(started).
		ThenState(func() {
			d := m.Data()
			assert.Equal(t, StatusInProgress, d.Status)
			assert.Equal(t, 1, d.Inning)
			assert.Equal(t, Top, d.Half)
			assert.Equal(t, Away, m.BattingSide())
		})
}

func TestMatchState_NotStarted(t *testing.T) {
	m := NewMatchState("m1")
	bdd.Given(t, m, created).
		When(func() error { return m.RecordPlay(Away, 1, 0) }).
		ThenError(ErrMatchNotStarted)
}

func TestMatchState_RecordPlay(t *testing.T) {
	m := NewMatchState("m1")
	bdd.Given(t, m, created, started).
		When(func() error { return m.RecordPlay(Away, 2, 1) }).
		Then(RunsScored{MatchID: "m1", Inning: 1, Half: Top, Side: Away, Runs: 2, OutsBefore: 0, OutsAfter: 1}).
		ThenState(func() {
			assert.Equal(t, Score{Away: 2}, m.Score())
			assert.Equal(t, 1, m.Data().Outs)
		})

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started).
		When(func() error { return m.RecordPlay(Home, 1, 0) }).
		ThenError(ErrWrongSide)

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started, RunsScored{Side: Away, OutsAfter: 3}).
		When(func() error { return m.RecordPlay(Away, 0, 3) }).
		ThenError(ErrHalfInningOver)
}

func TestMatchState_RevertPlay(t *testing.T) {
	play := RunsScored{MatchID: "m1", Inning: 1, Half: Top, Side: Away, Runs: 2, OutsBefore: 1, OutsAfter: 2}

	m := NewMatchState("m1")
	bdd.Given(t, m, created, started, RunsScored{Side: Away, OutsAfter: 1}, play).
		When(func() error { return m.RevertPlay(1, Top, Away, 2, 1, 2) }).
		Then(PlayReverted{MatchID: "m1", Inning: 1, Half: Top, Side: Away, Runs: 2, OutsBefore: 1, OutsAfter: 2}).
		ThenState(func() {
			assert.Equal(t, Score{}, m.Score())
			assert.Equal(t, 1, m.Data().Outs)
		})

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started, play, HalfInningAdvanced{ToInning: 1, ToHalf: Bottom}).
		When(func() error { return m.RevertPlay(1, Top, Away, 2, 1, 2) }).
		ThenError(ErrStateMismatch)
}

func TestMatchState_AdjustScore(t *testing.T) {
	m := NewMatchState("m1")
	bdd.Given(t, m, created, started).
		When(func() error { return m.AdjustScore(Home, 3, "scorer correction") }).
		Then(ScoreAdjusted{MatchID: "m1", Side: Home, Delta: 3, Reason: "scorer correction"})

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started).
		When(func() error { return m.AdjustScore(Home, -1, "") }).
		ThenError(ErrNegativeScore)
}

func TestMatchState_HalfInnings(t *testing.T) {
	m := NewMatchState("m1")
	bdd.Given(t, m, created, started, RunsScored{Side: Away, OutsAfter: 3}).
		When(m.AdvanceHalfInning).
		Then(HalfInningAdvanced{MatchID: "m1", FromInning: 1, FromHalf: Top, FromOuts: 3, ToInning: 1, ToHalf: Bottom})

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started, HalfInningAdvanced{ToInning: 1, ToHalf: Bottom}).
		When(m.AdvanceHalfInning).
		Then(HalfInningAdvanced{MatchID: "m1", FromInning: 1, FromHalf: Bottom, ToInning: 2, ToHalf: Top}).
		ThenState(func() {
			assert.Equal(t, 2, m.Data().Inning)
			assert.Equal(t, Away, m.BattingSide())
		})

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started, HalfInningAdvanced{ToInning: 2, ToHalf: Top}).
		When(func() error { return m.RevertHalfInning(1, Bottom, 3) }).
		Then(HalfInningReverted{MatchID: "m1", Inning: 1, Half: Bottom, Outs: 3}).
		ThenState(func() {
			assert.Equal(t, 3, m.Data().Outs)
		})

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started, HalfInningAdvanced{ToInning: 1, ToHalf: Bottom}, RunsScored{Side: Home, OutsAfter: 1}).
		When(func() error { return m.RevertHalfInning(1, Top, 3) }).
		ThenError(ErrStateMismatch)
}

func TestMatchState_CompleteAndReopen(t *testing.T) {
	m := NewMatchState("m1")
	bdd.Given(t, m, created, started, ScoreAdjusted{Side: Home, Delta: 4}).
		When(func() error { return m.Complete("final") }).
		Then(MatchCompleted{MatchID: "m1", HomeScore: 4, Winner: Home, Inning: 1, Half: Top, Reason: "final"})

	completed := MatchCompleted{MatchID: "m1"}
	mutations := map[string]func(m *MatchState) error{
		"record":   func(m *MatchState) error { return m.RecordPlay(Away, 0, 1) },
		"adjust":   func(m *MatchState) error { return m.AdjustScore(Away, 1, "") },
		"advance":  func(m *MatchState) error { return m.AdvanceHalfInning() },
		"complete": func(m *MatchState) error { return m.Complete("") },
		"start":    func(m *MatchState) error { return m.Start() },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			m := NewMatchState("m1")
			bdd.Given(t, m, created, started, completed).
				When(func() error { return mutate(m) }).
				ThenError(ErrMatchCompleted)
		})
	}

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started, completed).
		When(func() error { return m.Reopen("undo") }).
		Then(MatchReopened{MatchID: "m1", Reason: "undo"}).
		ThenState(func() {
			assert.Equal(t, StatusInProgress, m.Status())
		})

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started).
		When(func() error { return m.Reopen("") }).
		ThenError(ErrStateMismatch)
}

func TestMatchState_RevertStart(t *testing.T) {
	m := NewMatchState("m1")
	bdd.Given(t, m, created, started).
		When(m.RevertStart).
		Then(MatchStartReverted{MatchID: "m1"}).
		ThenState(func() {
			assert.Equal(t, StatusNotStarted, m.Status())
		})

	m = NewMatchState("m1")
	bdd.Given(t, m, created, started, ScoreAdjusted{Side: Away, Delta: 1}).
		When(m.RevertStart).
		ThenError(ErrStateMismatch)
}

func TestMatchState_UnknownEvent(t *testing.T) {
	require.Error(t, NewMatchState("m1").ApplyEvent(LineupCreated{}))
}

func TestScore(t *testing.T) {
	s := Score{}.Add(Away, 2).Add(Home, 1)
	assert.Equal(t, 2, s.Of(Away))
	assert.Equal(t, Away, s.Leader())
	assert.Equal(t, Side(""), Score{Away: 1, Home: 1}.Leader())
}

func TestNext(t *testing.T) {
	i, h := Next(3, Top)
	assert.Equal(t, 3, i)
	assert.Equal(t, Bottom, h)
	i, h = Next(3, Bottom)
	assert.Equal(t, 4, i)
	assert.Equal(t, Top, h)
	assert.Equal(t, Home, Away.Opponent())
}
