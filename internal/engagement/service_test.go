package engagement

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ykvlv/daily-prompt-bot/internal/domain"
	"github.com/ykvlv/daily-prompt-bot/internal/store"
)

func openSQLite(t *testing.T) store.Repo {
	t.Helper()
	r, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"), time.UTC)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func lastText(t *testing.T, msgs []sent) string {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatalf("no messages sent")
	}
	return msgs[len(msgs)-1].Text
}

func TestScenario_SubscribeAnswerAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openSQLite(t))
	const id = 100

	if err := f.svc.Subscribe(ctx, id); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	msgs := f.sender.to(id)
	if len(msgs) != 2 || msgs[0].Text != f.texts.Subscribed {
		t.Fatalf("want subscribed reply and prompt, got %+v", msgs)
	}
	if !msgs[1].Markdown || msgs[1].Text != f.texts.PromptMessage("P0") {
		t.Fatalf("want P0 prompt, got %+v", msgs[1])
	}
	u := f.user(t, id)
	if u.PromptIndex != 0 || u.Answered || u.LastPromptAt == nil {
		t.Fatalf("after subscribe: %+v", u)
	}

	if err := f.svc.Acknowledge(ctx, id); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if got := lastText(t, f.sender.to(id)); got != f.texts.Received {
		t.Fatalf("want received reply, got %q", got)
	}
	if u := f.user(t, id); !u.Answered {
		t.Fatalf("answered not set")
	}

	f.clock.Advance(24 * time.Hour)
	rep := f.svc.RunDispatch(ctx)
	if rep.Prompted != 1 || rep.Failed != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if got := lastText(t, f.sender.to(id)); got != f.texts.PromptMessage("P1") {
		t.Fatalf("want P1, got %q", got)
	}
	u = f.user(t, id)
	if u.PromptIndex != 1 || u.Answered || u.ReminderSent {
		t.Fatalf("after dispatch: %+v", u)
	}
	if !u.LastPromptAt.Equal(f.clock.Now()) {
		t.Fatalf("timestamp not from dispatch: %v", u.LastPromptAt)
	}
}

func TestScenario_UnansweredReminderThenDailyRenudge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openSQLite(t))
	const id = 7

	if err := f.svc.Subscribe(ctx, id); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	f.sender.reset()

	// Not due yet.
	f.clock.Advance(23 * time.Hour)
	if rep := f.svc.RunReminderScan(ctx); rep.Reminded != 0 {
		t.Fatalf("reminder before delay: %+v", rep)
	}

	f.clock.Advance(2 * time.Hour)
	rep := f.svc.RunReminderScan(ctx)
	if rep.Reminded != 1 {
		t.Fatalf("want 1 reminder, got %+v", rep)
	}
	u := f.user(t, id)
	if !u.ReminderSent || u.Answered || u.PromptIndex != 0 {
		t.Fatalf("after scan: %+v", u)
	}

	// A second scan for the same prompt is silent.
	if rep := f.svc.RunReminderScan(ctx); rep.Reminded != 0 {
		t.Fatalf("duplicate reminder: %+v", rep)
	}

	rep = f.svc.RunDispatch(ctx)
	if rep.Reminded != 1 || rep.Prompted != 0 {
		t.Fatalf("daily run should re-nudge: %+v", rep)
	}
	msgs := f.sender.to(id)
	if len(msgs) != 2 || msgs[0].Text != f.texts.Reminder || msgs[1].Text != f.texts.Reminder {
		t.Fatalf("want two reminders, got %+v", msgs)
	}
	if u := f.user(t, id); u.PromptIndex != 0 || u.Answered {
		t.Fatalf("re-nudge must not advance: %+v", u)
	}
}

func TestScenario_CorruptRecordAmongTen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sentAt := f.clock.Now()
	for id := int64(1); id <= 10; id++ {
		u := domain.Advanced(domain.User{ChatID: id}, 0, sentAt)
		if id == 4 {
			u.LastPromptAt = nil
			u.BadTimestamp = "2025-13-45 garbage"
		}
		f.mem.put(u)
	}

	f.clock.Advance(25 * time.Hour)
	rep := f.svc.RunReminderScan(ctx)
	if rep.Visited != 10 || rep.Reminded != 9 || rep.Corrupt != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if msgs := f.sender.to(4); len(msgs) != 0 {
		t.Fatalf("corrupt user must be skipped, got %+v", msgs)
	}
	if u := f.mem.get(t, 4); u.ReminderSent {
		t.Fatalf("corrupt user must stay untouched")
	}
}

func TestAcknowledge_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	if err := f.svc.Subscribe(ctx, 1); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.svc.Acknowledge(ctx, 1); err != nil {
			t.Fatalf("Acknowledge #%d: %v", i, err)
		}
		if u := f.user(t, 1); !u.Answered {
			t.Fatalf("answered must stay true after #%d", i)
		}
		if got := lastText(t, f.sender.to(1)); got != f.texts.Received {
			t.Fatalf("want received reply, got %q", got)
		}
	}
}

func TestAcknowledge_NoPromptCreatesUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	if err := f.svc.Acknowledge(ctx, 55); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if got := lastText(t, f.sender.to(55)); got != f.texts.NoPrompt {
		t.Fatalf("want no-prompt reply, got %q", got)
	}
	u := f.user(t, 55)
	if u.Prompted() || u.Answered {
		t.Fatalf("nothing to acknowledge: %+v", u)
	}
}

func TestSubscribe_AlreadySubscribed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_ = f.svc.Subscribe(ctx, 1)
	f.sender.reset()
	if err := f.svc.Subscribe(ctx, 1); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	msgs := f.sender.to(1)
	if len(msgs) != 1 || msgs[0].Text != f.texts.AlreadySubscribed {
		t.Fatalf("want already-subscribed only, got %+v", msgs)
	}
}

func TestUnsubscribe_ThenCommandBootstraps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, openSQLite(t))
	_ = f.svc.Subscribe(ctx, 3)
	_ = f.svc.Acknowledge(ctx, 3)
	_ = f.svc.RunDispatch(ctx)
	if u := f.user(t, 3); u.PromptIndex != 1 {
		t.Fatalf("setup: want index 1, got %d", u.PromptIndex)
	}

	if err := f.svc.Unsubscribe(ctx, 3); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if _, err := f.repo.GetUser(ctx, 3); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("record must be deleted, got %v", err)
	}
	// Unsubscribing twice is fine.
	if err := f.svc.Unsubscribe(ctx, 3); err != nil {
		t.Fatalf("second Unsubscribe: %v", err)
	}

	f.sender.reset()
	if err := f.svc.Acknowledge(ctx, 3); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if got := lastText(t, f.sender.to(3)); got != f.texts.NoPrompt {
		t.Fatalf("want no-prompt path after unsubscribe, got %q", got)
	}
	if err := f.svc.Subscribe(ctx, 3); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := lastText(t, f.sender.to(3)); got != f.texts.PromptMessage("P0") {
		t.Fatalf("want P0 after resubscribe, got %q", got)
	}
}

func TestDispatch_SendFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for _, id := range []int64{1, 2} {
		_ = f.svc.Subscribe(ctx, id)
		_ = f.svc.Acknowledge(ctx, id)
	}
	f.sender.setFail(1, true)

	rep := f.svc.RunDispatch(ctx)
	if rep.Failed != 1 || rep.Prompted != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if u := f.user(t, 1); u.PromptIndex != 0 || !u.Answered {
		t.Fatalf("failed send must not advance: %+v", u)
	}
	if u := f.user(t, 2); u.PromptIndex != 1 {
		t.Fatalf("other user must advance: %+v", u)
	}

	// Picked up on the next run.
	f.sender.setFail(1, false)
	rep = f.svc.RunDispatch(ctx)
	if u := f.user(t, 1); u.PromptIndex != 1 {
		t.Fatalf("retry must advance: %+v (report %+v)", u, rep)
	}
}

func TestReminderScan_SendFailureNotRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_ = f.svc.Subscribe(ctx, 1)
	f.clock.Advance(25 * time.Hour)
	f.sender.setFail(1, true)

	if rep := f.svc.RunReminderScan(ctx); rep.Failed != 1 {
		t.Fatalf("want failure, got %+v", rep)
	}
	if u := f.user(t, 1); u.ReminderSent {
		t.Fatalf("undelivered reminder must not be recorded")
	}
}

func TestDispatch_StoreFailureIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for _, id := range []int64{1, 2, 3} {
		_ = f.svc.Subscribe(ctx, id)
		_ = f.svc.Acknowledge(ctx, id)
	}
	f.mem.setFail(2, true)

	rep := f.svc.RunDispatch(ctx)
	if rep.Visited != 3 || rep.Prompted != 2 || rep.Failed != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestDispatch_ListFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.mem.listErr = store.ErrUnavailable
	rep := f.svc.RunDispatch(context.Background())
	if rep.Visited != 0 || rep.Failed != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestDispatch_BootstrapsUnpromptedUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	// Subscribe whose first prompt failed to send.
	f.sender.setFail(9, true)
	if err := f.svc.Subscribe(ctx, 9); !errors.Is(err, ErrSend) {
		t.Fatalf("want ErrSend, got %v", err)
	}
	if u := f.user(t, 9); u.Prompted() {
		t.Fatalf("failed bootstrap must stay unprompted")
	}

	f.sender.setFail(9, false)
	rep := f.svc.RunDispatch(ctx)
	if rep.Prompted != 1 {
		t.Fatalf("want bootstrap prompt, got %+v", rep)
	}
	if u := f.user(t, 9); u.PromptIndex != 0 || !u.Prompted() {
		t.Fatalf("want index 0 prompted, got %+v", u)
	}
}

func TestDispatch_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, nil)
	for id := int64(1); id <= 5; id++ {
		_ = f.svc.Subscribe(context.Background(), id)
	}
	f.sender.reset()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := f.svc.RunDispatch(ctx)
	if !rep.Cancelled || rep.Visited != 0 {
		t.Fatalf("want cancelled empty run, got %+v", rep)
	}
}

func TestDispatch_CancelledWhileWaitingForWorker(t *testing.T) {
	f := newFixture(t, nil)
	for id := int64(1); id <= 3; id++ {
		_ = f.svc.Subscribe(context.Background(), id)
	}
	f.sender.reset()
	f.svc.opts.Workers = 1

	// The next user is queued behind the in-flight send when shutdown hits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sender.onSend = func(int64) { cancel() }

	rep := f.svc.RunDispatch(ctx)
	if !rep.Cancelled || rep.Visited != 1 {
		t.Fatalf("want one user then stop, got %+v", rep)
	}
	if n := len(f.sender.to(2)) + len(f.sender.to(3)); n != 0 {
		t.Fatalf("no user may start after cancellation, %d sends", n)
	}
	if n := len(f.sender.to(1)); n != 1 {
		t.Fatalf("in-flight user must finish its step, got %d sends", n)
	}
}

func TestDispatch_WrapsAroundCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, "A", "B")
	_ = f.svc.Subscribe(ctx, 1)
	for day := 0; day < 4; day++ {
		_ = f.svc.Acknowledge(ctx, 1)
		f.clock.Advance(24 * time.Hour)
		f.svc.RunDispatch(ctx)
	}
	if u := f.user(t, 1); u.PromptIndex != 0 {
		t.Fatalf("after 4 advances over 2 prompts want index 0, got %d", u.PromptIndex)
	}
}

func TestConcurrentScans_SingleReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for id := int64(1); id <= 8; id++ {
		_ = f.svc.Subscribe(ctx, id)
	}
	f.sender.reset()
	f.sender.delay = 2 * time.Millisecond
	f.clock.Advance(25 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.RunReminderScan(ctx)
		}()
	}
	wg.Wait()

	for id := int64(1); id <= 8; id++ {
		if n := len(f.sender.to(id)); n != 1 {
			t.Fatalf("user %d got %d reminders, want 1", id, n)
		}
	}
	if n := f.svc.locks.size(); n != 0 {
		t.Fatalf("lock table must drain, has %d entries", n)
	}
}

func TestConcurrentAnswerAndScan_NoReminderAfterAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for id := int64(1); id <= 20; id++ {
		_ = f.svc.Subscribe(ctx, id)
	}
	f.sender.reset()
	f.clock.Advance(25 * time.Hour)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for id := int64(1); id <= 20; id++ {
			_ = f.svc.Acknowledge(ctx, id)
		}
	}()
	go func() {
		defer wg.Done()
		f.svc.RunReminderScan(ctx)
	}()
	wg.Wait()

	for id := int64(1); id <= 20; id++ {
		u := f.user(t, id)
		if !u.Answered {
			t.Fatalf("user %d lost its answer", id)
		}
		msgs := f.sender.to(id)
		if u.ReminderSent && msgs[0].Text != f.texts.Reminder {
			t.Fatalf("user %d: reminder recorded after the answer: %+v", id, msgs)
		}
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_ = f.svc.Status(ctx, 1)
	if got := lastText(t, f.sender.to(1)); got != f.texts.NotSubscribed {
		t.Fatalf("want not-subscribed, got %q", got)
	}

	_ = f.svc.Subscribe(ctx, 1)
	_ = f.svc.Status(ctx, 1)
	want := f.texts.StatusMessage(1, domain.LocalizeStamp(f.clock.Now(), time.UTC), false)
	if got := lastText(t, f.sender.to(1)); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}
