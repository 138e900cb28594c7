// Package notify forwards committed scorebook outcomes to external systems.
//
// A Notifier is installed as a scorebook commit hook by the caller (API or
// CLI); the scoring core never publishes on its own. Routes select which
// outcomes go to which destination, and publishers are looked up by the
// destination prefix:
//
//	n := notify.New(
//		notify.WithPublisher(webhook.New()),
//		notify.WithRoute(notify.Route{Destination: "webhook:https://example.com/score", ScoreOnly: true}),
//	)
//	svc := scorebook.NewService(store, scorebook.OnCommitted(n.Hook()))
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/game"
	"github.com/AshkanYarmoradi/go-dugout/scorebook"
)

// ErrNoPublisher is returned when a route names a destination prefix no
// publisher handles.
var ErrNoPublisher = errors.New("dugout/notify: no publisher for destination")

// Message is one notification addressed to a destination such as
// "webhook:https://host/path", "kafka:topic" or "sns:arn:...".
type Message struct {
	ID          string
	Destination string
	Key         string
	Payload     []byte
	Headers     map[string]string
}

// Publisher delivers messages for one destination prefix.
type Publisher interface {
	Destination() string
	Publish(ctx context.Context, messages []*Message) error
}

// Route selects outcomes for a destination.
type Route struct {
	Destination string
	// ScoreOnly limits the route to outcomes that changed the score.
	ScoreOnly bool
	// Actions limits the route to these action types. Empty means all.
	Actions []scorebook.ActionType
}

func (r Route) matches(o scorebook.Outcome) bool {
	if r.ScoreOnly && !o.ScoreChanged {
		return false
	}
	if len(r.Actions) == 0 {
		return true
	}
	for _, a := range r.Actions {
		if a == o.Action {
			return true
		}
	}
	return false
}

// Payload is the JSON body of every notification.
type Payload struct {
	MatchID     string               `json:"matchId"`
	Action      scorebook.ActionType `json:"action"`
	Direction   string               `json:"direction"`
	Seq         int                  `json:"seq"`
	Description string               `json:"description"`
	Score       *game.Score          `json:"score,omitempty"`
	Status      game.MatchStatus     `json:"status,omitempty"`
	Inning      int                  `json:"inning,omitempty"`
	IsTopHalf   bool                 `json:"isTopHalf"`
	Outs        int                  `json:"outs"`
	RecordedAt  time.Time            `json:"recordedAt"`
}

// NewPayload builds the notification body for o.
func NewPayload(o scorebook.Outcome) Payload {
	p := Payload{
		MatchID:     o.MatchID,
		Action:      o.Action,
		Direction:   o.Direction,
		Seq:         o.Entry.Seq,
		Description: o.Entry.Description,
		RecordedAt:  o.Entry.RecordedAt,
	}
	if o.State != nil {
		score := o.State.Score
		p.Score = &score
		p.Status = o.State.Status
		p.Inning = o.State.CurrentInning
		p.IsTopHalf = o.State.IsTopHalf
		p.Outs = o.State.Outs
	}
	return p
}

// Notifier routes outcomes to publishers.
type Notifier struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	routes     []Route
	logger     dugout.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithPublisher registers p under p.Destination().
func WithPublisher(p Publisher) Option {
	return func(n *Notifier) {
		n.publishers[p.Destination()] = p
	}
}

// WithRoute adds a route.
func WithRoute(r Route) Option {
	return func(n *Notifier) {
		n.routes = append(n.routes, r)
	}
}

// WithLogger sets the logger.
func WithLogger(l dugout.Logger) Option {
	return func(n *Notifier) {
		n.logger = l
	}
}

// New creates a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		publishers: make(map[string]Publisher),
		logger:     dugout.NopLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// AddRoute adds a route after construction.
func (n *Notifier) AddRoute(r Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, r)
}

// Routes returns a copy of the configured routes.
func (n *Notifier) Routes() []Route {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Route, len(n.routes))
	copy(out, n.routes)
	return out
}

// Hook adapts Notify to a scorebook commit hook.
func (n *Notifier) Hook() scorebook.CommitHook {
	return n.Notify
}

// Notify publishes o to every matching route. All routes are attempted;
// errors are joined.
func (n *Notifier) Notify(ctx context.Context, o scorebook.Outcome) error {
	n.mu.RLock()
	routes := make([]Route, len(n.routes))
	copy(routes, n.routes)
	n.mu.RUnlock()

	var body []byte
	grouped := make(map[string][]*Message)
	for _, r := range routes {
		if !r.matches(o) {
			continue
		}
		if body == nil {
			var err error
			if body, err = json.Marshal(NewPayload(o)); err != nil {
				return fmt.Errorf("dugout/notify: failed to encode payload: %w", err)
			}
		}
		prefix := destinationPrefix(r.Destination)
		grouped[prefix] = append(grouped[prefix], &Message{
			ID:          fmt.Sprintf("%s-%d-%s", o.MatchID, o.Entry.Seq, o.Direction),
			Destination: r.Destination,
			Key:         o.MatchID,
			Payload:     body,
			Headers: map[string]string{
				"match-id":  o.MatchID,
				"action":    string(o.Action),
				"direction": o.Direction,
			},
		})
	}

	var errs []error
	for prefix, msgs := range grouped {
		n.mu.RLock()
		p, ok := n.publishers[prefix]
		n.mu.RUnlock()
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrNoPublisher, prefix))
			continue
		}
		if err := p.Publish(ctx, msgs); err != nil {
			n.logger.Warn("Notification failed", "matchId", o.MatchID, "destination", prefix, "error", err)
			errs = append(errs, err)
			continue
		}
		n.logger.Debug("Notification sent", "matchId", o.MatchID, "destination", prefix, "messages", len(msgs))
	}
	return errors.Join(errs...)
}

// Close closes publishers that hold connections.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var errs []error
	for _, p := range n.publishers {
		if c, ok := p.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func destinationPrefix(destination string) string {
	if i := strings.IndexByte(destination, ':'); i > 0 {
		return destination[:i]
	}
	return destination
}

// TrimPrefix returns destination without "<prefix>:", or "" when the
// destination has another prefix.
func TrimPrefix(destination, prefix string) string {
	p := prefix + ":"
	if strings.HasPrefix(destination, p) {
		return destination[len(p):]
	}
	return ""
}
