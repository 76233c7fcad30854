package engagement

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ykvlv/daily-prompt-bot/internal/domain"
	"github.com/ykvlv/daily-prompt-bot/internal/store"
)

// Subscribe handles /start. A user who never got a prompt receives the first
// one right away; anyone else is told they are already subscribed.
func (s *Service) Subscribe(ctx context.Context, chatID int64) error {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	u, err := s.ensureUser(ctx, chatID)
	if err != nil {
		s.reply(chatID, s.opts.Texts.Error)
		return err
	}
	if u.Prompted() {
		s.reply(chatID, s.opts.Texts.AlreadySubscribed)
		return nil
	}

	s.reply(chatID, s.opts.Texts.Subscribed)
	now := s.now()
	a := domain.DecideAdvance(u, s.opts.Catalog, now)
	if err := s.deliverPrompt(ctx, chatID, a, now); err != nil {
		// Left unprompted; the daily dispatch bootstraps the user.
		return err
	}
	s.log.Info("subscribed", zap.Int64("chatID", chatID), zap.Int("index", a.Index))
	return nil
}

// Unsubscribe handles /stop. The record is deleted unconditionally.
func (s *Service) Unsubscribe(ctx context.Context, chatID int64) error {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	sctx, cancel := s.storeCtx(ctx)
	err := s.repo.RemoveUser(sctx, chatID)
	cancel()
	if err != nil {
		s.reply(chatID, s.opts.Texts.Error)
		return err
	}
	s.reply(chatID, s.opts.Texts.Unsubscribed)
	s.log.Info("unsubscribed", zap.Int64("chatID", chatID))
	return nil
}

// Acknowledge handles inbound free text as an answer to the current prompt.
func (s *Service) Acknowledge(ctx context.Context, chatID int64) error {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	u, err := s.ensureUser(ctx, chatID)
	if err != nil {
		s.reply(chatID, s.opts.Texts.Error)
		return err
	}

	switch a := domain.DecideAcknowledge(u); a.Kind {
	case domain.ReplyNoPrompt:
		s.reply(chatID, s.opts.Texts.NoPrompt)
	case domain.SetAnswered:
		sctx, cancel := s.storeCtx(ctx)
		err := s.repo.ApplyAcknowledge(sctx, chatID)
		cancel()
		if err != nil {
			s.reply(chatID, s.opts.Texts.Error)
			return err
		}
		s.log.Debug("answer recorded", zap.Int64("chatID", chatID), zap.Int("index", u.PromptIndex))
		s.reply(chatID, s.opts.Texts.Received)
	default:
		s.reply(chatID, s.opts.Texts.Received)
	}
	return nil
}

// Status replies with the user's current prompt position.
func (s *Service) Status(ctx context.Context, chatID int64) error {
	u, err := s.getUser(ctx, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.reply(chatID, s.opts.Texts.NotSubscribed)
		return nil
	case err != nil:
		s.reply(chatID, s.opts.Texts.Error)
		return err
	case !u.Prompted():
		s.reply(chatID, s.opts.Texts.NoPrompt)
		return nil
	}

	sentAt := "?"
	if u.LastPromptAt != nil {
		sentAt = domain.LocalizeStamp(*u.LastPromptAt, s.opts.Location)
	}
	number := s.opts.Catalog.Norm(u.PromptIndex) + 1
	s.reply(chatID, s.opts.Texts.StatusMessage(number, sentAt, u.Answered))
	return nil
}
