// Package engagement applies the prompt state machine to stored users.
//
// Every transition for a user runs under that user's lock and re-reads the
// record inside it, so the daily dispatch, the reminder scan and inbound
// answers never interleave on one record. Messages go out before the state
// change that depends on them is committed.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/daily-prompt-bot/internal/catalog"
	"github.com/ykvlv/daily-prompt-bot/internal/domain"
	"github.com/ykvlv/daily-prompt-bot/internal/store"
	"github.com/ykvlv/daily-prompt-bot/internal/texts"
)

// ErrSend marks a message that could not be delivered.
var ErrSend = errors.New("send failed")

// Sender delivers outbound messages. telegram.Router implements it.
type Sender interface {
	SendMessage(chatID int64, text string) error
	SendMarkdown(chatID int64, text string) error
}

// Options is the immutable configuration of a Service.
type Options struct {
	Catalog       catalog.Catalog
	Texts         texts.Texts
	Location      *time.Location   // dispatch timezone, used for display
	ReminderDelay time.Duration    // defaults to domain.ReminderDelay
	OpTimeout     time.Duration    // per store call; defaults to 10s
	Workers       int              // users processed in parallel by a batch; defaults to 1
	Now           func() time.Time // defaults to time.Now
}

// Service runs engagement transitions.
type Service struct {
	repo   store.Repo
	sender Sender
	log    *zap.Logger
	opts   Options
	locks  *userLocks
}

// New creates a Service. The catalog must be loaded (non-empty).
func New(repo store.Repo, sender Sender, log *zap.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ReminderDelay <= 0 {
		opts.ReminderDelay = domain.ReminderDelay
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:   repo,
		sender: sender,
		log:    log,
		opts:   opts,
		locks:  newUserLocks(),
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

// storeCtx bounds a single store call.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}

func (s *Service) getUser(ctx context.Context, chatID int64) (*domain.User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.repo.GetUser(sctx, chatID)
}

func (s *Service) ensureUser(ctx context.Context, chatID int64) (*domain.User, error) {
	sctx, cancel := s.storeCtx(ctx)
	created, err := s.repo.EnsureUser(sctx, chatID)
	cancel()
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("user created", zap.Int64("chatID", chatID))
	}
	return s.getUser(ctx, chatID)
}

// reply sends a plain text reply; failures are logged only.
func (s *Service) reply(chatID int64, text string) {
	if err := s.sender.SendMessage(chatID, text); err != nil {
		s.log.Warn("reply failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// deliverPrompt sends the prompt chosen by a and then commits the advance.
func (s *Service) deliverPrompt(ctx context.Context, chatID int64, a domain.Action, now time.Time) error {
	if err := s.sender.SendMarkdown(chatID, s.opts.Texts.PromptMessage(a.Text)); err != nil {
		return fmt.Errorf("%w: prompt %d: %w", ErrSend, a.Index, err)
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.ApplyAdvance(sctx, chatID, a.Index, now); err != nil {
		// The prompt is out but not recorded; the next run may repeat it.
		return fmt.Errorf("record prompt %d: %w", a.Index, err)
	}
	return nil
}

// deliverReminder sends a reminder and, for scan reminders, commits it.
func (s *Service) deliverReminder(ctx context.Context, chatID int64, a domain.Action) error {
	if err := s.sender.SendMessage(chatID, s.opts.Texts.Reminder); err != nil {
		return fmt.Errorf("%w: reminder: %w", ErrSend, err)
	}
	if !a.MarkReminder {
		return nil
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.ApplyReminder(sctx, chatID); err != nil {
		return fmt.Errorf("record reminder: %w", err)
	}
	return nil
}
