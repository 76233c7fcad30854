package engagement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ykvlv/daily-prompt-bot/internal/domain"
	"github.com/ykvlv/daily-prompt-bot/internal/store"
)

type outcome int

const (
	outcomeNone outcome = iota
	outcomePrompted
	outcomeReminded
	outcomeGone // unsubscribed after the listing was taken
	outcomeCorrupt
	outcomeFailed
)

// Report summarises one batch run.
type Report struct {
	RunID     string
	Kind      string
	Visited   int
	Prompted  int
	Reminded  int
	Skipped   int
	Corrupt   int
	Failed    int
	Cancelled bool
	Duration  time.Duration
}

func (r *Report) add(o outcome) {
	r.Visited++
	switch o {
	case outcomePrompted:
		r.Prompted++
	case outcomeReminded:
		r.Reminded++
	case outcomeCorrupt:
		r.Corrupt++
	case outcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// RunDispatch is the daily cycle: every user either gets the next prompt or,
// when the current one is unanswered, a reminder.
func (s *Service) RunDispatch(ctx context.Context) Report {
	return s.runBatch(ctx, "dispatch", s.dispatchOne)
}

// RunReminderScan reminds users whose prompt has been unanswered for longer
// than the reminder delay, once per prompt.
func (s *Service) RunReminderScan(ctx context.Context) Report {
	return s.runBatch(ctx, "reminder_scan", s.remindOne)
}

type userStep func(ctx context.Context, chatID int64) (outcome, error)

// runBatch applies step to every stored user. Failures stay with their user.
// Cancellation is honoured between users; a user already started finishes.
func (s *Service) runBatch(ctx context.Context, kind string, step userStep) Report {
	started := time.Now()
	rep := Report{RunID: uuid.NewString(), Kind: kind}
	log := s.log.With(zap.String("run", kind), zap.String("run_id", rep.RunID))

	sctx, cancel := s.storeCtx(ctx)
	users, err := s.repo.ListUsers(sctx)
	cancel()
	if err != nil {
		log.Error("list users failed", zap.Error(err))
		rep.Failed++
		rep.Duration = time.Since(started)
		return rep
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	for _, u := range users {
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}
		chatID := u.ChatID
		g.Go(func() error {
			// g.Go may have waited for a free worker past cancellation.
			if ctx.Err() != nil {
				mu.Lock()
				rep.Cancelled = true
				mu.Unlock()
				return nil
			}
			o, err := step(context.WithoutCancel(ctx), chatID)
			if err != nil {
				logStepError(log, chatID, o, err)
			}
			mu.Lock()
			rep.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep.Duration = time.Since(started)
	log.Info("batch finished",
		zap.Int("users", len(users)),
		zap.Int("visited", rep.Visited),
		zap.Int("prompted", rep.Prompted),
		zap.Int("reminded", rep.Reminded),
		zap.Int("skipped", rep.Skipped),
		zap.Int("corrupt", rep.Corrupt),
		zap.Int("failed", rep.Failed),
		zap.Bool("cancelled", rep.Cancelled),
		zap.Duration("took", rep.Duration),
	)
	return rep
}

func logStepError(log *zap.Logger, chatID int64, o outcome, err error) {
	fields := []zap.Field{zap.Int64("chatID", chatID), zap.Error(err)}
	switch {
	case o == outcomeCorrupt:
		log.Warn("skipping corrupt record", fields...)
	case errors.Is(err, ErrSend):
		log.Warn("delivery failed, state unchanged", fields...)
	case errors.Is(err, store.ErrUnavailable):
		log.Error("store unavailable for user", fields...)
	default:
		log.Error("user step failed", fields...)
	}
}

func (s *Service) dispatchOne(ctx context.Context, chatID int64) (outcome, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	u, err := s.getUser(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return outcomeGone, nil
	}
	if err != nil {
		return outcomeFailed, err
	}

	now := s.now()
	switch a := domain.DecideAdvance(u, s.opts.Catalog, now); a.Kind {
	case domain.SendPrompt:
		if err := s.deliverPrompt(ctx, chatID, a, now); err != nil {
			return outcomeFailed, err
		}
		return outcomePrompted, nil
	case domain.SendReminder:
		if err := s.deliverReminder(ctx, chatID, a); err != nil {
			return outcomeFailed, err
		}
		return outcomeReminded, nil
	default:
		return outcomeNone, nil
	}
}

func (s *Service) remindOne(ctx context.Context, chatID int64) (outcome, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	u, err := s.getUser(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return outcomeGone, nil
	}
	if err != nil {
		return outcomeFailed, err
	}

	a, err := domain.DecideReminder(u, s.now(), s.opts.ReminderDelay)
	if err != nil {
		return outcomeCorrupt, err
	}
	if a.Kind != domain.SendReminder {
		return outcomeNone, nil
	}
	if err := s.deliverReminder(ctx, chatID, a); err != nil {
		return outcomeFailed, err
	}
	return outcomeReminded, nil
}
