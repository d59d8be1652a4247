package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
)

const (
	defaultMirrorTimeout  = 15 * time.Second
	defaultReconcileEvery = 30 * time.Second
)

// Mirror persists every ledger mutation. The ledger stays authoritative; the
// mirror is what a restarted process hydrates from.
type Mirror interface {
	UpsertResourceProgress(dbc dbctx.Context, rows []*types.ResourceProgress) error
	UpsertTopicGoals(dbc dbctx.Context, rows []*types.TopicGoal) error
	DeleteUserData(dbc dbctx.Context, userID string, topicID string) error
	LoadAll(dbc dbctx.Context) ([]*types.ResourceProgress, []*types.TopicGoal, error)
	ListByUser(dbc dbctx.Context, userID string) ([]*types.ResourceProgress, []*types.TopicGoal, error)
}

// WithMirrorTimeout bounds each mirror call. Mirror calls do not follow the
// caller's cancellation, only this timeout.
func WithMirrorTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.mirrorTimeout = d
		}
	}
}

// sequencer hands out mirror turns. Tickets are taken while the ledger lock
// is held, so turns follow the order writes were applied in memory.
type sequencer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sequencer) take() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.next
	s.next++
	return t
}

func (s *sequencer) wait(ticket uint64) {
	s.mu.Lock()
	for s.serving != ticket {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

func (s *sequencer) done() {
	s.mu.Lock()
	s.serving++
	s.mu.Unlock()
	s.cond.Broadcast()
}

// inTurn runs fn once every earlier ticket has finished. Users whose write
// failed are remembered for Reconcile. Every ticket must pass through here.
func (l *Ledger) inTurn(dbc dbctx.Context, ticket uint64, users []string, fn func(dbctx.Context) error) error {
	l.seq.wait(ticket)
	defer l.seq.done()
	if l.mirror == nil {
		return nil
	}
	mdbc := dbc.Detached()
	ctx, cancel := context.WithTimeout(mdbc.Ctx, l.mirrorTimeout)
	defer cancel()
	mdbc.Ctx = ctx

	err := fn(mdbc)
	if err != nil {
		l.markUnsynced(users...)
	}
	return err
}

func (l *Ledger) mirrorResources(dbc dbctx.Context, rows []*types.ResourceProgress) error {
	if len(rows) == 0 {
		return nil
	}
	if err := l.mirror.UpsertResourceProgress(dbc, rows); err != nil {
		l.log.Error("progress mirror upsert failed", "rows", len(rows), "error", err)
		return fmt.Errorf("%w: %w", ErrMirror, err)
	}
	return nil
}

func (l *Ledger) mirrorGoals(dbc dbctx.Context, goals []*types.TopicGoal) error {
	if len(goals) == 0 {
		return nil
	}
	if err := l.mirror.UpsertTopicGoals(dbc, goals); err != nil {
		l.log.Error("goal mirror upsert failed", "rows", len(goals), "error", err)
		return fmt.Errorf("%w: %w", ErrMirror, err)
	}
	return nil
}

func (l *Ledger) markUnsynced(users ...string) {
	l.unsyncedMu.Lock()
	defer l.unsyncedMu.Unlock()
	for _, u := range users {
		l.unsynced[u] = struct{}{}
	}
}

// UnsyncedUsers lists users with a failed mirror write not yet reconciled.
func (l *Ledger) UnsyncedUsers() []string {
	l.unsyncedMu.Lock()
	defer l.unsyncedMu.Unlock()
	out := make([]string, 0, len(l.unsynced))
	for u := range l.unsynced {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Reconcile makes the mirror match the ledger for one user. Topics whose
// mirrored rows or goal differ from memory are rewritten; topics the ledger
// no longer holds are deleted. It returns how many topics were rewritten.
func (l *Ledger) Reconcile(dbc dbctx.Context, userID string) (int, error) {
	l.mu.RLock()
	memRows := map[ResourceKey]*types.ResourceProgress{}
	for _, t := range sortedKeys(l.index[userID]) {
		for _, r := range l.topicRowsLocked(userID, t) {
			memRows[keyOf(r)] = r
		}
	}
	memGoals := map[GoalKey]*types.TopicGoal{}
	for k, g := range l.goals {
		if k.UserID == userID {
			memGoals[k] = g.Clone()
		}
	}
	ticket := l.seq.take()
	l.mu.RUnlock()

	rewritten := 0
	err := l.inTurn(dbc, ticket, []string{userID}, func(mdbc dbctx.Context) error {
		rows, goals, err := l.mirror.ListByUser(mdbc, userID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMirror, err)
		}
		stale := staleTopics(memRows, memGoals, rows, goals)
		for _, topicID := range stale {
			if err := l.mirror.DeleteUserData(mdbc, userID, topicID); err != nil {
				return fmt.Errorf("%w: %w", ErrMirror, err)
			}
			if err := l.mirrorResources(mdbc, rowsOfTopic(memRows, topicID)); err != nil {
				return err
			}
			if g := memGoals[GoalKey{UserID: userID, TopicID: topicID}]; g != nil {
				if err := l.mirrorGoals(mdbc, []*types.TopicGoal{g}); err != nil {
					return err
				}
			}
		}
		rewritten = len(stale)
		// Still inside the turn, so a later failed write re-marks the user.
		l.unsyncedMu.Lock()
		delete(l.unsynced, userID)
		l.unsyncedMu.Unlock()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if rewritten > 0 {
		l.log.Info("progress mirror reconciled", "user_id", userID, "topics", rewritten)
	}
	return rewritten, nil
}

// ReconcileUnsynced reconciles every user with a failed mirror write.
func (l *Ledger) ReconcileUnsynced(dbc dbctx.Context) error {
	for _, u := range l.UnsyncedUsers() {
		if _, err := l.Reconcile(dbc, u); err != nil {
			return fmt.Errorf("reconcile %s: %w", u, err)
		}
	}
	return nil
}

// RunReconciler retries unsynced users every interval until ctx is done.
func (l *Ledger) RunReconciler(ctx context.Context, every time.Duration) {
	if l.mirror == nil {
		return
	}
	if every <= 0 {
		every = defaultReconcileEvery
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.ReconcileUnsynced(dbctx.New(ctx)); err != nil {
				l.log.Warn("progress mirror reconcile failed", "error", err)
			}
		}
	}
}

func staleTopics(
	memRows map[ResourceKey]*types.ResourceProgress,
	memGoals map[GoalKey]*types.TopicGoal,
	rows []*types.ResourceProgress,
	goals []*types.TopicGoal,
) []string {
	stale := map[string]struct{}{}
	seen := map[ResourceKey]struct{}{}
	for _, r := range rows {
		k := keyOf(r)
		seen[k] = struct{}{}
		if m := memRows[k]; m == nil || !sameRow(m, r) {
			stale[k.TopicID] = struct{}{}
		}
	}
	for k := range memRows {
		if _, ok := seen[k]; !ok {
			stale[k.TopicID] = struct{}{}
		}
	}
	seenGoals := map[GoalKey]struct{}{}
	for _, g := range goals {
		k := goalKeyOf(g)
		seenGoals[k] = struct{}{}
		if m := memGoals[k]; m == nil || !m.UpdatedAt.Equal(g.UpdatedAt) {
			stale[k.TopicID] = struct{}{}
		}
	}
	for k := range memGoals {
		if _, ok := seenGoals[k]; !ok {
			stale[k.TopicID] = struct{}{}
		}
	}
	return sortedKeys(stale)
}

func sameRow(a, b *types.ResourceProgress) bool {
	return a.Status == b.Status && a.UpdatedAt.Equal(b.UpdatedAt)
}

func rowsOfTopic(rows map[ResourceKey]*types.ResourceProgress, topicID string) []*types.ResourceProgress {
	out := []*types.ResourceProgress{}
	for k, r := range rows {
		if k.TopicID == topicID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}
