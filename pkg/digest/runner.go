package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/wookiee/ai-assistant/pkg/chat"
	"github.com/wookiee/ai-assistant/pkg/db"
	"github.com/wookiee/ai-assistant/pkg/events"
)

const runnerLogPrefix = "digest:runner"

// Kind selects the batch digest variant.
type Kind string

const (
	KindMorning Kind = "morning"
	KindEvening Kind = "evening"
)

// DefaultSendRate is the chat send budget per second during a batch.
const DefaultSendRate = 25

// Header returns the line that opens a batch digest message.
func (k Kind) Header() string {
	switch k {
	case KindEvening:
		return "Вечерний дайджест:\n\n"
	default:
		return "Утренний дайджест:\n\n"
	}
}

// ParseKind accepts "morning" or "evening".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMorning, KindEvening:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%s - unknown digest kind %q", runnerLogPrefix, s)
}

// UserLister enumerates linked users.
type UserLister interface {
	ListUsers(ctx context.Context) ([]db.User, error)
}

// Result summarizes one batch.
type Result struct {
	Kind      Kind          `json:"kind"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

// Runner delivers a digest to every linked user.
type Runner struct {
	users     UserLister
	composer  *Composer
	sender    chat.Sender
	publisher events.EventPublisher
	limiter   *rate.Limiter
}

// RunnerParams holds parameters for NewRunner.
type RunnerParams struct {
	Users     UserLister
	Composer  *Composer
	Sender    chat.Sender
	Publisher events.EventPublisher
	// SendRate is messages per second; zero or negative uses DefaultSendRate.
	SendRate float64
}

// NewRunner creates a new Runner.
func NewRunner(params RunnerParams) *Runner {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	r := params.SendRate
	if r <= 0 {
		r = DefaultSendRate
	}
	return &Runner{
		users:     params.Users,
		composer:  params.Composer,
		sender:    params.Sender,
		publisher: pub,
		limiter:   rate.NewLimiter(rate.Limit(r), 1),
	}
}

// Run sends a kind digest to every user. A failure for one user is logged and
// counted without stopping the batch. Only listing users or cancellation of ctx
// returns an error.
func (r *Runner) Run(ctx context.Context, kind Kind) (*Result, error) {
	started := time.Now()
	slog.Info(fmt.Sprintf("%s - Starting %s digest", runnerLogPrefix, kind))

	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - list users: %w", runnerLogPrefix, err)
	}

	res := &Result{Kind: kind}
	for i := range users {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(started)
			return res, fmt.Errorf("%s - %s digest interrupted after %d users: %w", runnerLogPrefix, kind, i, err)
		}
		u := &users[i]
		if err := r.deliver(ctx, kind, u); err != nil {
			res.Failed++
			slog.Error(fmt.Sprintf("%s - Failed to send %s digest for %d: %v", runnerLogPrefix, kind, u.TelegramID, err))
			continue
		}
		res.Processed++
	}

	res.Duration = time.Since(started)
	slog.Info(fmt.Sprintf("%s - %s digest done: %d sent, %d failed in %s",
		runnerLogPrefix, kind, res.Processed, res.Failed, res.Duration.Round(time.Millisecond)))
	return res, nil
}

// BatchContext detaches a batch from the deadline and cancellation of the request
// that triggered it. timeout bounds the whole batch; zero or negative means none.
func BatchContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// CountUsers returns how many users a batch would address.
func (r *Runner) CountUsers(ctx context.Context) (int, error) {
	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s - list users: %w", runnerLogPrefix, err)
	}
	return len(users), nil
}

func (r *Runner) deliver(ctx context.Context, kind Kind, u *db.User) error {
	d, err := r.composer.Compose(ctx, u)
	if err != nil {
		return err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := r.sender.Send(ctx, u.TelegramChatID, kind.Header()+Render(d)); err != nil {
		return err
	}

	ev := events.NewEvent(events.TypeDigestSent, u.TelegramID, u.BitrixUserID, map[string]any{
		"kind":     string(kind),
		"today":    len(d.Today),
		"overdue":  len(d.Overdue),
		"events":   len(d.Events),
		"timezone": d.Timezone,
	})
	if err := r.publisher.Publish(ctx, ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - digest.sent event for %d not published: %v", runnerLogPrefix, u.TelegramID, err))
	}
	return nil
}
