package scorebook

import (
	"context"
	"fmt"
	"strings"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/game"
)

// MatchSetup is the input for a new match. Roster belongs to ManagedSide;
// OpponentRoster may be omitted, in which case a placeholder is used.
type MatchSetup struct {
	MatchID        string       `json:"matchId,omitempty" yaml:"matchId"`
	AwayTeam       string       `json:"awayTeam" yaml:"awayTeam"`
	HomeTeam       string       `json:"homeTeam" yaml:"homeTeam"`
	ManagedSide    game.Side    `json:"managedSide" yaml:"managedSide"`
	Roster         game.Roster  `json:"roster" yaml:"roster"`
	OpponentRoster *game.Roster `json:"opponentRoster,omitempty" yaml:"opponentRoster"`
	Rules          *game.Rules  `json:"rules,omitempty" yaml:"rules"`
}

// Validate checks the shape of the setup. Roster completeness is checked
// separately, after the match id is known to be free.
func (s MatchSetup) Validate() error {
	errs := dugout.NewMultiValidationError("InitializeMatch")
	if strings.TrimSpace(s.AwayTeam) == "" {
		errs.AddField("awayTeam", "away team is required")
	}
	if strings.TrimSpace(s.HomeTeam) == "" {
		errs.AddField("homeTeam", "home team is required")
	}
	if s.AwayTeam != "" && s.AwayTeam == s.HomeTeam {
		errs.AddField("homeTeam", "teams must differ")
	}
	if !s.ManagedSide.Valid() {
		errs.AddField("managedSide", `must be "away" or "home"`)
	}
	if len(s.Roster.Players) == 0 {
		errs.AddField("roster.players", "roster has no players")
	}
	if s.Rules != nil {
		if err := s.Rules.Validate(); err != nil {
			errs.AddField("rules", err.Error())
		}
	}
	return errs.ErrOrNil()
}

func (s MatchSetup) rules() game.Rules {
	if s.Rules != nil {
		return *s.Rules
	}
	return game.DefaultRules()
}

func (s MatchSetup) team(side game.Side) string {
	if side == game.Home {
		return s.HomeTeam
	}
	return s.AwayTeam
}

// rosters returns the managed and opponent rosters, team names filled in.
func (s MatchSetup) rosters() (managed, opponent game.Roster, placeholder bool) {
	managed = s.Roster
	if managed.Team == "" {
		managed.Team = s.team(s.ManagedSide)
	}
	opp := s.ManagedSide.Opponent()
	if s.OpponentRoster == nil {
		return managed, game.PlaceholderOpponentRoster(s.team(opp)), true
	}
	opponent = *s.OpponentRoster
	if opponent.Team == "" {
		opponent.Team = s.team(opp)
	}
	return managed, opponent, false
}

// InitResult reports a match initialization.
type InitResult struct {
	Success             bool       `json:"success"`
	MatchID             string     `json:"matchId"`
	State               *MatchView `json:"state,omitempty"`
	PlaceholderOpponent bool       `json:"placeholderOpponent"`
	Events              int        `json:"events"`
}

// Initializer creates the aggregates of a new match and persists them as
// one unit.
type Initializer struct {
	store *Store
	opts  options
}

// NewInitializer creates an Initializer.
func NewInitializer(store *Store, opts ...Option) *Initializer {
	return &Initializer{store: store, opts: newOptions(opts)}
}

// Initialize validates setup, builds the match state, both lineups and the
// inning state, and commits them together with a GAME_START history entry.
// Nothing is persisted if validation fails, and a failed commit is rolled
// back so the match id stays free for a retry.
func (in *Initializer) Initialize(ctx context.Context, setup MatchSetup) (*InitResult, error) {
	log := in.opts.logger

	if err := setup.Validate(); err != nil {
		log.Warn("Match setup rejected", "error", err)
		return nil, err
	}

	matchID := setup.MatchID
	if matchID == "" {
		matchID = in.opts.newID()
	}
	log.Info("Initializing match", "matchId", matchID, "awayTeam", setup.AwayTeam, "homeTeam", setup.HomeTeam)

	exists, err := in.store.Matches.Exists(ctx, matchID)
	if err != nil {
		// Already a PersistenceAggregateLoad failure.
		log.Error("Match initialization failed", "matchId", matchID, "stage", "exists", "error", err)
		return nil, err
	}
	if exists {
		log.Warn("Match initialization rejected", "matchId", matchID, "error", ErrMatchExists)
		return nil, fmt.Errorf("%w: %s", ErrMatchExists, matchID)
	}

	managed, opponent, placeholder := setup.rosters()
	verrs := dugout.NewMultiValidationError("InitializeMatch")
	game.ValidateRoster("roster", managed, verrs)
	if setup.OpponentRoster != nil {
		game.ValidateRoster("opponentRoster", opponent, verrs)
	}
	if verrs.HasErrors() {
		log.Warn("Match setup rejected", "matchId", matchID, "error", verrs)
		return nil, verrs
	}

	rules := setup.rules()
	match, away, home, inning, err := in.build(matchID, setup, managed, opponent, placeholder, rules)
	if err != nil {
		log.Error("Match initialization failed", "matchId", matchID, "stage", "build", "error", err)
		return nil, err
	}

	hist := NewActionHistory(matchID)
	aggs := []dugout.Aggregate{away, home, inning, match}
	hist.Record(HistoryEntry{
		Type:        ActionGameStart,
		Description: fmt.Sprintf("%s at %s", setup.AwayTeam, setup.HomeTeam),
		Aggregates:  kinds(aggs),
		RecordedAt:  in.opts.now(),
		GameStart: &GameStartAction{
			AwayLineupID:        away.AggregateID(),
			HomeLineupID:        home.AggregateID(),
			InningStateID:       inning.AggregateID(),
			PlaceholderOpponent: placeholder,
		},
	})

	events := eventCount(aggs)
	ops := in.store.operations(aggs, hist)
	res := in.opts.coordinator.Run(ctx, "initialize-match", ops, dugout.TxContext{"matchId": matchID})
	if !res.Success {
		err := &TransactionError{Transaction: "initialize-match", Result: res}
		log.Error("Match initialization failed", "matchId", matchID, "stage", "persist",
			"operation", res.FailedOperation, "rolledBack", res.RollbackApplied, "error", err)
		return nil, err
	}
	for _, a := range aggs {
		dugout.MarkCommitted(a)
	}

	view := Project(match, away, home, inning)
	log.Info("Match initialized", "matchId", matchID, "events", events, "placeholderOpponent", placeholder)

	return &InitResult{
		Success:             true,
		MatchID:             matchID,
		State:               view,
		PlaceholderOpponent: placeholder,
		Events:              events,
	}, nil
}

func (in *Initializer) build(matchID string, setup MatchSetup, managed, opponent game.Roster, placeholder bool, rules game.Rules) (
	*game.MatchState, *game.RosterLineup, *game.RosterLineup, *game.InningState, error,
) {
	rosters := map[game.Side]game.Roster{
		setup.ManagedSide:            managed,
		setup.ManagedSide.Opponent(): opponent,
	}
	lineups := make(map[game.Side]*game.RosterLineup, 2)
	for _, side := range []game.Side{game.Away, game.Home} {
		l := game.NewRosterLineup(in.opts.newID())
		isPlaceholder := placeholder && side != setup.ManagedSide
		if err := l.Create(matchID, side, rosters[side], isPlaceholder, rules.AllowReentry); err != nil {
			return nil, nil, nil, nil, err
		}
		lineups[side] = l
	}

	inning := game.NewInningState(in.opts.newID())
	if err := inning.Create(matchID, rules.OutsPerHalf, lineups[game.Away].Size(), lineups[game.Home].Size()); err != nil {
		return nil, nil, nil, nil, err
	}

	match := game.NewMatchState(matchID)
	err := match.Create(game.MatchSetup{
		AwayTeam:      setup.AwayTeam,
		HomeTeam:      setup.HomeTeam,
		ManagedSide:   setup.ManagedSide,
		Rules:         rules,
		AwayLineupID:  lineups[game.Away].AggregateID(),
		HomeLineupID:  lineups[game.Home].AggregateID(),
		InningStateID: inning.AggregateID(),
		CreatedAt:     in.opts.now(),
	})
	if err == nil {
		err = match.Start()
	}
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return match, lineups[game.Away], lineups[game.Home], inning, nil
}
