package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/cli/styles"
	"github.com/AshkanYarmoradi/go-dugout/cli/ui"
	"github.com/AshkanYarmoradi/go-dugout/game"
	"github.com/AshkanYarmoradi/go-dugout/scorebook"
)

// NewMatchCommand creates the match command and its scoring subcommands.
func NewMatchCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "match",
		Aliases: []string{"m"},
		Short:   "Record and inspect matches",
		Long: `Record a match one action at a time.

Every write goes through the command bus, so --key makes a retried
command safe to repeat.

Examples:
  dugout match start -f setup.yaml
  dugout match at-bat <id> double
  dugout match sub <id> --side home --slot 4 --player p12 --position LF
  dugout match undo <id> -n 2 --yes
  dugout match history <id>`,
	}

	cmd.AddCommand(newMatchStartCommand(flags))
	cmd.AddCommand(newMatchShowCommand(flags))
	cmd.AddCommand(newMatchHistoryCommand(flags))
	cmd.AddCommand(newMatchAtBatCommand(flags))
	cmd.AddCommand(newMatchSubCommand(flags))
	cmd.AddCommand(newMatchEndHalfCommand(flags))
	cmd.AddCommand(newMatchEndCommand(flags))
	cmd.AddCommand(newMatchAdjustCommand(flags))
	cmd.AddCommand(newMatchCompensateCommand(flags, "undo"))
	cmd.AddCommand(newMatchCompensateCommand(flags, "redo"))

	return cmd
}

// withRuntime opens a runtime for the duration of fn.
func withRuntime(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, rt *Runtime) error) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	ctx := ensureContext(cmd.Context())
	rt, err := OpenRuntime(ctx, cfg, WithLogOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// dispatch sends cmd and turns failures into user-facing errors. A nil
// Data means the idempotency middleware replayed an earlier result.
func dispatch(ctx context.Context, rt *Runtime, out io.Writer, cmd dugout.Command) (dugout.CommandResult, bool, error) {
	res, err := rt.Dispatch(ctx, cmd)
	if err != nil {
		return res, false, userError(err)
	}
	if res.IsSuccess() && res.Data == nil {
		fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("Already processed: %s at version %d", res.AggregateID, res.Version)))
		return res, true, nil
	}
	return res, false, nil
}

// publicError shows the sanitized message and keeps the cause for errors.Is.
type publicError struct {
	msg string
	err error
}

func (e *publicError) Error() string { return e.msg }
func (e *publicError) Unwrap() error { return e.err }

func userError(err error) error {
	return &publicError{msg: scorebook.PublicMessage(err), err: err}
}

func base(key string) dugout.CommandBase {
	return dugout.CommandBase{RequestKey: key}
}

func printAction(out io.Writer, res dugout.CommandResult) {
	ar, ok := res.Data.(*scorebook.ActionResult)
	if !ok {
		return
	}
	fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("#%d %s", ar.Seq, ar.Description)))
	if ar.Discarded > 0 {
		fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("Discarded %d undone action(s)", ar.Discarded)))
	}
	if ar.State != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.Scoreboard(ar.State))
	}
}

func newMatchStartCommand(flags *globalFlags) *cobra.Command {
	var (
		file    string
		matchID string
		key     string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a match from a setup file",
		Long: `Start a match from a YAML setup file:

  awayTeam: Otters
  homeTeam: Herons
  managedSide: home
  roster:
    players:
      - {id: p1, name: Ada, jersey: "7", position: P, battingOrder: 1}
      ...

Without opponentRoster a placeholder lineup is used for the opponent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setup, err := readSetup(file)
			if err != nil {
				return err
			}
			if matchID != "" {
				setup.MatchID = matchID
			}
			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				res, replayed, err := dispatch(ctx, rt, out, scorebook.InitializeMatch{CommandBase: base(key), Setup: setup})
				if err != nil || replayed {
					return err
				}
				ir := res.Data.(*scorebook.InitResult)
				fmt.Fprintln(out, styles.FormatSuccess("Match started: "+styles.Highlight.Render(ir.MatchID)))
				if ir.PlaceholderOpponent {
					fmt.Fprintln(out, styles.FormatWarning("Opponent lineup is a placeholder"))
				}
				if ir.State != nil {
					fmt.Fprintln(out)
					fmt.Fprintln(out, ui.Scoreboard(ir.State))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Match setup YAML file")
	cmd.Flags().StringVar(&matchID, "id", "", "Match id (generated when empty)")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readSetup(path string) (scorebook.MatchSetup, error) {
	var setup scorebook.MatchSetup
	data, err := os.ReadFile(path)
	if err != nil {
		return setup, fmt.Errorf("read setup: %w", err)
	}
	if err := yaml.Unmarshal(data, &setup); err != nil {
		return setup, fmt.Errorf("parse setup: %w", err)
	}
	return setup, nil
}

func newMatchShowCommand(flags *globalFlags) *cobra.Command {
	var lineups bool

	cmd := &cobra.Command{
		Use:   "show <match-id>",
		Short: "Show the current state of a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				view, err := rt.Service.State(ctx, args[0])
				if err != nil {
					return userError(err)
				}
				fmt.Fprintln(out, ui.Scoreboard(view))
				if lineups {
					fmt.Fprintln(out)
					fmt.Fprintln(out, styles.Subtitle.Render(view.AwayTeam))
					fmt.Fprintln(out, ui.LineupTable(view.Away))
					fmt.Fprintln(out, styles.Subtitle.Render(view.HomeTeam))
					fmt.Fprintln(out, ui.LineupTable(view.Home))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&lineups, "lineups", "l", false, "Show both lineups")
	return cmd
}

func newMatchHistoryCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history <match-id>",
		Short: "List recorded actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				hist, err := rt.Service.History(ctx, args[0])
				if err != nil {
					return userError(err)
				}
				fmt.Fprintln(out, ui.HistoryTable(hist))
				fmt.Fprintln(out, styles.FormatKeyValue("Undoable", strconv.Itoa(hist.Undoable())))
				fmt.Fprintln(out, styles.FormatKeyValue("Redoable", strconv.Itoa(hist.Redoable())))
				return nil
			})
		},
	}
}

func newMatchAtBatCommand(flags *globalFlags) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "at-bat <match-id> <result>",
		Short: "Record the result of the batter due up",
		Long: `Record an at-bat. Results: single, double, triple, home_run, walk,
hit_by_pitch, strikeout, ground_out, fly_out, sacrifice_fly.`,
		Aliases: []string{"ab"},
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				res, replayed, err := dispatch(ctx, rt, out, scorebook.RecordAtBat{
					CommandBase: base(key),
					MatchID:     args[0],
					Result:      game.AtBatResult(strings.ToLower(args[1])),
				})
				if err == nil && !replayed {
					printAction(out, res)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	return cmd
}

func newMatchSubCommand(flags *globalFlags) *cobra.Command {
	var (
		side     string
		slot     int
		player   string
		position string
		key      string
	)

	cmd := &cobra.Command{
		Use:   "sub <match-id>",
		Short: "Substitute a player into a batting slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				res, replayed, err := dispatch(ctx, rt, out, scorebook.Substitute{
					CommandBase: base(key),
					MatchID:     args[0],
					Side:        game.Side(strings.ToLower(side)),
					Slot:        slot,
					PlayerID:    player,
					Position:    game.Position(strings.ToUpper(position)),
				})
				if err == nil && !replayed {
					printAction(out, res)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&side, "side", "", "Side: away or home")
	cmd.Flags().IntVar(&slot, "slot", 0, "Batting slot (1-based)")
	cmd.Flags().StringVar(&player, "player", "", "Incoming player id")
	cmd.Flags().StringVar(&position, "position", "", "Defensive position, for example LF or DH")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	return cmd
}

func newMatchEndHalfCommand(flags *globalFlags) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "end-half <match-id>",
		Short: "End the half inning in play",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				res, replayed, err := dispatch(ctx, rt, out, scorebook.EndHalfInning{CommandBase: base(key), MatchID: args[0]})
				if err == nil && !replayed {
					printAction(out, res)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	return cmd
}

func newMatchEndCommand(flags *globalFlags) *cobra.Command {
	var reason, key string

	cmd := &cobra.Command{
		Use:   "end <match-id>",
		Short: "Complete the match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				res, replayed, err := dispatch(ctx, rt, out, scorebook.EndMatch{CommandBase: base(key), MatchID: args[0], Reason: reason})
				if err == nil && !replayed {
					printAction(out, res)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the match ended, for example mercy rule")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	return cmd
}

func newMatchAdjustCommand(flags *globalFlags) *cobra.Command {
	var (
		side   string
		delta  int
		reason string
		key    string
	)

	cmd := &cobra.Command{
		Use:   "adjust <match-id>",
		Short: "Correct a side's score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				res, replayed, err := dispatch(ctx, rt, out, scorebook.AdjustScore{
					CommandBase: base(key),
					MatchID:     args[0],
					Side:        game.Side(strings.ToLower(side)),
					Delta:       delta,
					Reason:      reason,
				})
				if err == nil && !replayed {
					printAction(out, res)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&side, "side", "", "Side: away or home")
	cmd.Flags().IntVar(&delta, "delta", 0, "Runs to add (negative to remove)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason for the correction")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	return cmd
}

// newMatchCompensateCommand builds undo or redo.
func newMatchCompensateCommand(flags *globalFlags, direction string) *cobra.Command {
	var (
		limit int
		yes   bool
		key   string
	)

	short := "Undo the most recent actions"
	if direction == "redo" {
		short = "Redo undone actions"
	}

	cmd := &cobra.Command{
		Use:   direction + " <match-id>",
		Short: short,
		Long: short + `.

Each action is compensated with new events in its own transaction. When
fewer actions are available than requested, the available ones are
processed and a warning is printed. Asks for confirmation when more than
one action is requested, unless --yes is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matchID := args[0]
			if limit > 1 && !yes {
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("%s %d actions on %s?", capitalize(direction), limit, matchID)).
					Value(&confirmed).
					WithTheme(huh.ThemeDracula()).
					Run()
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), styles.FormatInfo("Cancelled"))
					return nil
				}
			}

			var c dugout.Command = scorebook.Undo{CommandBase: base(key), MatchID: matchID, Limit: limit}
			if direction == "redo" {
				c = scorebook.Redo{CommandBase: base(key), MatchID: matchID, Limit: limit}
			}

			out := cmd.OutOrStdout()
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				res, replayed, err := dispatch(ctx, rt, out, c)
				if err != nil || replayed {
					return err
				}
				ur, ok := res.Data.(*scorebook.UndoResult)
				if !ok {
					return nil
				}
				return printCompensation(out, ur)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "count", "n", 1, "Number of actions")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	return cmd
}

func printCompensation(out io.Writer, res *scorebook.UndoResult) error {
	if len(res.Processed) > 0 {
		fmt.Fprintln(out, ui.CompensationTable(res))
	}
	switch {
	case res.Success:
		fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("%s %d action(s), position %d", capitalize(res.Direction), len(res.Processed), res.Position)))
	case errors.Is(res.Err, scorebook.ErrNoActionsAvailable):
		fmt.Fprintln(out, styles.FormatWarning(res.Message))
	default:
		if res.State != nil {
			fmt.Fprintln(out, ui.Scoreboard(res.State))
		}
		return errors.New(res.Message)
	}
	if res.State != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.Scoreboard(res.State))
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
