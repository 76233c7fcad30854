package engagement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/daily-prompt-bot/internal/catalog"
	"github.com/ykvlv/daily-prompt-bot/internal/domain"
	"github.com/ykvlv/daily-prompt-bot/internal/store"
	"github.com/ykvlv/daily-prompt-bot/internal/texts"
)

type sent struct {
	ChatID   int64
	Text     string
	Markdown bool
}

// fakeSender records messages and fails for chat ids in failFor.
type fakeSender struct {
	mu      sync.Mutex
	msgs    []sent
	failFor map[int64]bool
	delay   time.Duration
	onSend  func(chatID int64)
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: make(map[int64]bool)}
}

func (f *fakeSender) send(chatID int64, text string, md bool) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.onSend != nil {
		f.onSend(chatID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("telegram: chat not found")
	}
	f.msgs = append(f.msgs, sent{ChatID: chatID, Text: text, Markdown: md})
	return nil
}

func (f *fakeSender) SendMessage(chatID int64, text string) error { return f.send(chatID, text, false) }
func (f *fakeSender) SendMarkdown(chatID int64, text string) error { return f.send(chatID, text, true) }

func (f *fakeSender) setFail(chatID int64, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[chatID] = fail
}

func (f *fakeSender) to(chatID int64) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, m := range f.msgs {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

// memRepo is an in-memory store.Repo with failure injection.
type memRepo struct {
	mu      sync.Mutex
	users   map[int64]domain.User
	failFor map[int64]bool
	listErr error
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[int64]domain.User), failFor: make(map[int64]bool)}
}

func (m *memRepo) down(chatID int64) error {
	if m.failFor[chatID] {
		return store.ErrUnavailable
	}
	return nil
}

func (m *memRepo) EnsureUser(_ context.Context, chatID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.down(chatID); err != nil {
		return false, err
	}
	if _, ok := m.users[chatID]; ok {
		return false, nil
	}
	m.users[chatID] = domain.User{ChatID: chatID, CreatedAt: time.Now().UTC()}
	return true, nil
}

func (m *memRepo) GetUser(_ context.Context, chatID int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.down(chatID); err != nil {
		return nil, err
	}
	u, ok := m.users[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *memRepo) ListUsers(context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (m *memRepo) update(chatID int64, fn func(u *domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.down(chatID); err != nil {
		return err
	}
	u, ok := m.users[chatID]
	if !ok {
		return nil
	}
	fn(&u)
	m.users[chatID] = u
	return nil
}

func (m *memRepo) ApplyAdvance(_ context.Context, chatID int64, index int, sentAt time.Time) error {
	return m.update(chatID, func(u *domain.User) { *u = domain.Advanced(*u, index, sentAt) })
}

func (m *memRepo) ApplyAcknowledge(_ context.Context, chatID int64) error {
	return m.update(chatID, func(u *domain.User) { u.Answered = true })
}

func (m *memRepo) ApplyReminder(_ context.Context, chatID int64) error {
	return m.update(chatID, func(u *domain.User) { u.ReminderSent = true })
}

func (m *memRepo) RemoveUser(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.down(chatID); err != nil {
		return err
	}
	delete(m.users, chatID)
	return nil
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) put(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ChatID] = u
}

func (m *memRepo) get(t *testing.T, chatID int64) domain.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[chatID]
	if !ok {
		t.Fatalf("user %d not stored", chatID)
	}
	return u
}

func (m *memRepo) setFail(chatID int64, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[chatID] = fail
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc    *Service
	repo   store.Repo
	mem    *memRepo // nil when repo is SQLite
	sender *fakeSender
	clock  *fakeClock
	texts  texts.Texts
}

func newFixture(t *testing.T, repo store.Repo, prompts ...string) *fixture {
	t.Helper()
	if len(prompts) == 0 {
		prompts = []string{"P0", "P1", "P2"}
	}
	cat, err := catalog.New(prompts)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	tx, err := texts.Default()
	if err != nil {
		t.Fatalf("texts: %v", err)
	}
	if repo == nil {
		repo = newMemRepo()
	}
	mem, _ := repo.(*memRepo)
	clock := &fakeClock{t: time.Date(2025, time.May, 5, 9, 0, 0, 0, time.UTC)}
	sender := newFakeSender()
	svc := New(repo, sender, zap.NewNop(), Options{
		Catalog:   cat,
		Texts:     tx,
		Workers:   4,
		OpTimeout: time.Second,
		Now:       clock.Now,
	})
	return &fixture{svc: svc, repo: repo, mem: mem, sender: sender, clock: clock, texts: tx}
}

func (f *fixture) user(t *testing.T, chatID int64) *domain.User {
	t.Helper()
	u, err := f.repo.GetUser(context.Background(), chatID)
	if err != nil {
		t.Fatalf("GetUser(%d): %v", chatID, err)
	}
	return u
}
