// Package bdd provides Given/When/Then fixtures for dugout aggregates and
// command handlers.
//
//	bdd.Given(t, game.NewMatchState("m1"), created, started).
//		When(func() error { return match.AdjustScore(game.Home, 1, "") }).
//		Then(game.ScoreAdjusted{MatchID: "m1", Side: game.Home, Delta: 1})
package bdd

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	dugout "github.com/AshkanYarmoradi/go-dugout"
)

// TB is an alias for testing.TB so the fixtures can be exercised with fakes.
type TB = testing.TB

// TestFixture drives one aggregate through a single command.
type TestFixture struct {
	t           TB
	aggregate   dugout.Aggregate
	givenEvents []interface{}
	result      error
	executed    bool
}

// Given replays events into aggregate before the command runs.
func Given(t TB, aggregate dugout.Aggregate, events ...interface{}) *TestFixture {
	t.Helper()
	return &TestFixture{
		t:           t,
		aggregate:   aggregate,
		givenEvents: events,
	}
}

// When applies the given events, clears the buffer and runs commandFunc.
func (f *TestFixture) When(commandFunc func() error) *TestFixture {
	f.t.Helper()

	for _, event := range f.givenEvents {
		if err := f.aggregate.ApplyEvent(event); err != nil {
			f.t.Fatalf("Failed to apply given event %T: %v", event, err)
		}
	}
	f.aggregate.ClearUncommittedEvents()

	f.result = commandFunc()
	f.executed = true
	return f
}

// Then asserts the command succeeded and buffered exactly expectedEvents.
func (f *TestFixture) Then(expectedEvents ...interface{}) *TestFixture {
	f.t.Helper()
	f.mustHaveRun("Then")

	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}

	uncommitted := f.aggregate.UncommittedEvents()
	if len(uncommitted) != len(expectedEvents) {
		f.t.Fatalf("Expected %d events, got %d.\nExpected: %+v\nActual: %+v",
			len(expectedEvents), len(uncommitted), expectedEvents, uncommitted)
	}

	for i, expected := range expectedEvents {
		if !reflect.DeepEqual(uncommitted[i], expected) {
			f.t.Errorf("Event %d mismatch:\nExpected: %+v\nActual: %+v",
				i, expected, uncommitted[i])
		}
	}
	return f
}

// ThenState runs check against the aggregate after the command.
func (f *TestFixture) ThenState(check func()) {
	f.t.Helper()
	f.mustHaveRun("ThenState")
	check()
}

// ThenError asserts the command failed with an error matching expectedErr.
// A failed command must not buffer events.
func (f *TestFixture) ThenError(expectedErr error) {
	f.t.Helper()
	f.mustHaveRun("ThenError")

	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}
	if !errors.Is(f.result, expectedErr) {
		f.t.Errorf("Expected error %v, got %v", expectedErr, f.result)
	}
	if n := len(f.aggregate.UncommittedEvents()); n > 0 {
		f.t.Errorf("Expected no events after error, got %d", n)
	}
}

// ThenErrorContains asserts that the error message contains substring.
func (f *TestFixture) ThenErrorContains(substring string) {
	f.t.Helper()
	f.mustHaveRun("ThenErrorContains")

	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}
	if !strings.Contains(f.result.Error(), substring) {
		f.t.Errorf("Expected error containing %q, got %q", substring, f.result.Error())
	}
}

// ThenNoEvents asserts success without any buffered event.
func (f *TestFixture) ThenNoEvents() {
	f.t.Helper()
	f.mustHaveRun("ThenNoEvents")

	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}
	if uncommitted := f.aggregate.UncommittedEvents(); len(uncommitted) > 0 {
		f.t.Errorf("Expected no events, got %d: %+v", len(uncommitted), uncommitted)
	}
}

func (f *TestFixture) mustHaveRun(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When() - no command was executed", step)
	}
}

// CommandTestFixture dispatches one command through a bus.
type CommandTestFixture struct {
	t        TB
	ctx      context.Context
	bus      *dugout.CommandBus
	setup    []func(ctx context.Context) error
	result   dugout.CommandResult
	err      error
	executed bool
}

// GivenCommand creates a command fixture on bus.
func GivenCommand(t TB, bus *dugout.CommandBus) *CommandTestFixture {
	t.Helper()
	return &CommandTestFixture{t: t, ctx: context.Background(), bus: bus}
}

// WithContext sets the dispatch context.
func (f *CommandTestFixture) WithContext(ctx context.Context) *CommandTestFixture {
	f.ctx = ctx
	return f
}

// WithSetup runs fn before the command, failing the test if it errors.
// Use it to dispatch earlier commands or seed storage.
func (f *CommandTestFixture) WithSetup(fn func(ctx context.Context) error) *CommandTestFixture {
	f.setup = append(f.setup, fn)
	return f
}

// When runs the setup steps then dispatches cmd.
func (f *CommandTestFixture) When(cmd dugout.Command) *CommandTestFixture {
	f.t.Helper()
	for i, fn := range f.setup {
		if err := fn(f.ctx); err != nil {
			f.t.Fatalf("Setup step %d failed: %v", i, err)
		}
	}
	f.result, f.err = f.bus.Dispatch(f.ctx, cmd)
	f.executed = true
	return f
}

// ThenSucceeds asserts the command succeeded.
func (f *CommandTestFixture) ThenSucceeds() *CommandTestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenSucceeds")

	if f.err != nil {
		f.t.Fatalf("Expected success but got error: %v", f.err)
	}
	if !f.result.IsSuccess() {
		f.t.Fatalf("Expected success result but got error: %v", f.result.Error)
	}
	return f
}

// ThenFails asserts the command failed with an error matching expectedErr.
func (f *CommandTestFixture) ThenFails(expectedErr error) {
	f.t.Helper()
	f.mustHaveRun("ThenFails")

	if f.err == nil && f.result.IsSuccess() {
		f.t.Fatal("Expected failure but got success")
	}
	errToCheck := f.err
	if errToCheck == nil {
		errToCheck = f.result.Error
	}
	if !errors.Is(errToCheck, expectedErr) {
		f.t.Errorf("Expected error %v, got %v", expectedErr, errToCheck)
	}
}

// ThenReturnsAggregateID asserts the result's aggregate id.
func (f *CommandTestFixture) ThenReturnsAggregateID(expected string) *CommandTestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenReturnsAggregateID")

	if f.result.AggregateID != expected {
		f.t.Errorf("Expected aggregate ID %q, got %q", expected, f.result.AggregateID)
	}
	return f
}

// ThenReturnsVersion asserts the result's version.
func (f *CommandTestFixture) ThenReturnsVersion(expected int64) *CommandTestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenReturnsVersion")

	if f.result.Version != expected {
		f.t.Errorf("Expected version %d, got %d", expected, f.result.Version)
	}
	return f
}

// ThenData passes the result's Data to check.
func (f *CommandTestFixture) ThenData(check func(data interface{})) {
	f.t.Helper()
	f.mustHaveRun("ThenData")
	check(f.result.Data)
}

func (f *CommandTestFixture) mustHaveRun(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When() - no command was dispatched", step)
	}
}
