package progress

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

// ErrMirror marks a write that landed in the ledger but not in its mirror.
var ErrMirror = errors.New("progress mirror write failed")

type ResourceKey struct {
	UserID     string
	TopicID    string
	ResourceID string
}

type GoalKey struct {
	UserID  string
	TopicID string
}

func keyOf(p *types.ResourceProgress) ResourceKey {
	return ResourceKey{UserID: p.UserID, TopicID: p.TopicID, ResourceID: p.ResourceID}
}

func goalKeyOf(g *types.TopicGoal) GoalKey {
	return GoalKey{UserID: g.UserID, TopicID: g.TopicID}
}

// Mark is a single progress write for one resource.
type Mark struct {
	UserID     string
	TopicID    string
	ResourceID string
	Title      string
	Type       types.ResourceType
	Level      types.Level
	Status     types.Status
	Notes      *string
	Rating     *int
}

// GoalPatch updates a topic goal. Nil fields keep their stored value.
type GoalPatch struct {
	TargetCompletionDate *datatypes.Date
	WeeklyTarget         *int
	PersonalNotes        *string
}

type Option func(*Ledger)

// WithClock replaces time.Now. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLocation sets the time zone used for calendar-day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func WithMirror(m Mirror) Option {
	return func(l *Ledger) { l.mirror = m }
}

type Ledger struct {
	mu        sync.RWMutex
	resources map[ResourceKey]*types.ResourceProgress
	goals     map[GoalKey]*types.TopicGoal
	// user -> topic -> resource ids
	index map[string]map[string]map[string]struct{}

	mirror        Mirror
	mirrorTimeout time.Duration
	seq           *sequencer

	unsyncedMu sync.Mutex
	unsynced   map[string]struct{}

	now func() time.Time
	loc *time.Location
	log *logger.Logger
}

func NewLedger(baseLog *logger.Logger, opts ...Option) *Ledger {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	l := &Ledger{
		resources: map[ResourceKey]*types.ResourceProgress{},
		goals:     map[GoalKey]*types.TopicGoal{},
		index:     map[string]map[string]map[string]struct{}{},
		now:       time.Now,
		loc:       time.Local,
		log:       baseLog.With("service", "ProgressLedger"),

		mirrorTimeout: defaultMirrorTimeout,
		seq:           newSequencer(),
		unsynced:      map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now is the ledger clock, UTC at millisecond precision so every timestamp
// survives the epoch-millis transfer format unchanged.
func (l *Ledger) Now() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

func (l *Ledger) Location() *time.Location { return l.loc }

// LedgerSize counts what the ledger currently holds.
type LedgerSize struct {
	Users     int
	Resources int
	Goals     int
	Unsynced  int
}

func (l *Ledger) Size() LedgerSize {
	l.mu.RLock()
	defer l.mu.RUnlock()
	users := make(map[string]struct{}, len(l.index))
	for u := range l.index {
		users[u] = struct{}{}
	}
	for k := range l.goals {
		users[k.UserID] = struct{}{}
	}
	sz := LedgerSize{Users: len(users), Resources: len(l.resources), Goals: len(l.goals)}
	l.unsyncedMu.Lock()
	sz.Unsynced = len(l.unsynced)
	l.unsyncedMu.Unlock()
	return sz
}

// MarkResourceProgress creates or overwrites the row at the mark's key.
// createdAt is preserved, completedAt is stamped on completion and never cleared.
// Enum values are trusted; the transport validates them.
func (l *Ledger) MarkResourceProgress(dbc dbctx.Context, m Mark) (*types.ResourceProgress, error) {
	now := l.Now()
	key := ResourceKey{UserID: m.UserID, TopicID: m.TopicID, ResourceID: m.ResourceID}

	l.mu.Lock()
	existing := l.resources[key]
	row := &types.ResourceProgress{
		UserID:        m.UserID,
		TopicID:       m.TopicID,
		ResourceID:    m.ResourceID,
		ResourceTitle: m.Title,
		ResourceType:  m.Type,
		Level:         m.Level,
		Status:        m.Status,
		Notes:         m.Notes,
		Rating:        m.Rating,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if existing != nil {
		row.CreatedAt = existing.CreatedAt
		row.CompletedAt = existing.CompletedAt
	}
	if m.Status == types.StatusCompleted {
		row.CompletedAt = &now
	}
	l.putResourceLocked(row.Clone())
	snapshot := row.Clone()
	ticket := l.seq.take()
	l.mu.Unlock()

	err := l.inTurn(dbc, ticket, []string{m.UserID}, func(mdbc dbctx.Context) error {
		return l.mirrorResources(mdbc, []*types.ResourceProgress{snapshot})
	})
	return snapshot.Clone(), err
}

// SetTopicGoal merges patch into the stored goal for (userID, topicID).
func (l *Ledger) SetTopicGoal(dbc dbctx.Context, userID, topicID string, patch GoalPatch) (*types.TopicGoal, error) {
	now := l.Now()
	key := GoalKey{UserID: userID, TopicID: topicID}

	l.mu.Lock()
	goal := &types.TopicGoal{UserID: userID, TopicID: topicID, CreatedAt: now}
	if existing := l.goals[key]; existing != nil {
		goal = existing.Clone()
	}
	if patch.TargetCompletionDate != nil {
		d := *patch.TargetCompletionDate
		goal.TargetCompletionDate = &d
	}
	if patch.WeeklyTarget != nil {
		v := *patch.WeeklyTarget
		goal.WeeklyTarget = &v
	}
	if patch.PersonalNotes != nil {
		v := *patch.PersonalNotes
		goal.PersonalNotes = &v
	}
	goal.UpdatedAt = now
	l.goals[key] = goal
	snapshot := goal.Clone()
	ticket := l.seq.take()
	l.mu.Unlock()

	err := l.inTurn(dbc, ticket, []string{userID}, func(mdbc dbctx.Context) error {
		return l.mirrorGoals(mdbc, []*types.TopicGoal{snapshot})
	})
	return snapshot.Clone(), err
}

func (l *Ledger) GetUserResourceProgress(userID, topicID, resourceID string) *types.ResourceProgress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.resources[ResourceKey{UserID: userID, TopicID: topicID, ResourceID: resourceID}].Clone()
}

// GetTopicProgress returns every row for user+topic, ordered by resource id.
func (l *Ledger) GetTopicProgress(userID, topicID string) []*types.ResourceProgress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.topicRowsLocked(userID, topicID)
}

func (l *Ledger) GetTopicGoal(userID, topicID string) *types.TopicGoal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.goals[GoalKey{UserID: userID, TopicID: topicID}].Clone()
}

// UserResources returns all of a user's rows, optionally limited to one topic.
func (l *Ledger) UserResources(userID, topicID string) []*types.ResourceProgress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if topicID != "" {
		return l.topicRowsLocked(userID, topicID)
	}
	topics := sortedKeys(l.index[userID])
	out := []*types.ResourceProgress{}
	for _, t := range topics {
		out = append(out, l.topicRowsLocked(userID, t)...)
	}
	return out
}

// UserGoals returns the user's goals ordered by topic, optionally limited to one topic.
func (l *Ledger) UserGoals(userID, topicID string) []*types.TopicGoal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []*types.TopicGoal{}
	for k, g := range l.goals {
		if k.UserID != userID || (topicID != "" && k.TopicID != topicID) {
			continue
		}
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out
}

// ClearUserData drops the user's rows and goals, or only one topic's when
// topicID is set. It reports how many resource rows went away.
func (l *Ledger) ClearUserData(dbc dbctx.Context, userID, topicID string) (int, error) {
	l.mu.Lock()
	removed := 0
	topics := l.index[userID]
	for t, ids := range topics {
		if topicID != "" && t != topicID {
			continue
		}
		for id := range ids {
			delete(l.resources, ResourceKey{UserID: userID, TopicID: t, ResourceID: id})
			removed++
		}
		delete(topics, t)
	}
	if len(topics) == 0 {
		delete(l.index, userID)
	}
	for k := range l.goals {
		if k.UserID == userID && (topicID == "" || k.TopicID == topicID) {
			delete(l.goals, k)
		}
	}
	ticket := l.seq.take()
	l.mu.Unlock()

	err := l.inTurn(dbc, ticket, []string{userID}, func(mdbc dbctx.Context) error {
		if err := l.mirror.DeleteUserData(mdbc, userID, topicID); err != nil {
			l.log.Error("progress mirror delete failed", "user_id", userID, "topic_id", topicID, "error", err)
			return fmt.Errorf("%w: %w", ErrMirror, err)
		}
		return nil
	})
	if err != nil {
		return removed, err
	}
	l.log.Info("cleared user progress", "user_id", userID, "topic_id", topicID, "removed", removed)
	return removed, nil
}

// Hydrate replaces the ledger contents with whatever the mirror holds.
func (l *Ledger) Hydrate(dbc dbctx.Context) error {
	if l.mirror == nil {
		return nil
	}
	rows, goals, err := l.mirror.LoadAll(dbc)
	if err != nil {
		return fmt.Errorf("hydrate progress ledger: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resources = make(map[ResourceKey]*types.ResourceProgress, len(rows))
	l.goals = make(map[GoalKey]*types.TopicGoal, len(goals))
	l.index = map[string]map[string]map[string]struct{}{}
	for _, r := range rows {
		if r == nil {
			continue
		}
		l.putResourceLocked(normalizeRow(r.Clone()))
	}
	for _, g := range goals {
		if g == nil {
			continue
		}
		g = g.Clone()
		g.CreatedAt = g.CreatedAt.UTC()
		g.UpdatedAt = g.UpdatedAt.UTC()
		l.goals[goalKeyOf(g)] = g
	}
	l.unsyncedMu.Lock()
	l.unsynced = map[string]struct{}{}
	l.unsyncedMu.Unlock()
	l.log.Info("progress ledger hydrated", "resources", len(l.resources), "goals", len(l.goals))
	return nil
}

// applyBatch writes imported rows. With merge off, occupied keys are skipped.
// It returns how many resource rows were written.
func (l *Ledger) applyBatch(dbc dbctx.Context, rows []*types.ResourceProgress, goals []*types.TopicGoal, merge bool) (int, error) {
	l.mu.Lock()
	wroteRows := make([]*types.ResourceProgress, 0, len(rows))
	for _, r := range rows {
		if _, taken := l.resources[keyOf(r)]; taken && !merge {
			continue
		}
		l.putResourceLocked(r.Clone())
		wroteRows = append(wroteRows, r.Clone())
	}
	wroteGoals := make([]*types.TopicGoal, 0, len(goals))
	for _, g := range goals {
		if _, taken := l.goals[goalKeyOf(g)]; taken && !merge {
			continue
		}
		l.goals[goalKeyOf(g)] = g.Clone()
		wroteGoals = append(wroteGoals, g.Clone())
	}
	ticket := l.seq.take()
	l.mu.Unlock()

	err := l.inTurn(dbc, ticket, batchUsers(wroteRows, wroteGoals), func(mdbc dbctx.Context) error {
		if err := l.mirrorResources(mdbc, wroteRows); err != nil {
			return err
		}
		return l.mirrorGoals(mdbc, wroteGoals)
	})
	return len(wroteRows), err
}

func batchUsers(rows []*types.ResourceProgress, goals []*types.TopicGoal) []string {
	set := map[string]struct{}{}
	for _, r := range rows {
		set[r.UserID] = struct{}{}
	}
	for _, g := range goals {
		set[g.UserID] = struct{}{}
	}
	return sortedKeys(set)
}

func (l *Ledger) putResourceLocked(r *types.ResourceProgress) {
	key := keyOf(r)
	l.resources[key] = r
	topics := l.index[key.UserID]
	if topics == nil {
		topics = map[string]map[string]struct{}{}
		l.index[key.UserID] = topics
	}
	ids := topics[key.TopicID]
	if ids == nil {
		ids = map[string]struct{}{}
		topics[key.TopicID] = ids
	}
	ids[key.ResourceID] = struct{}{}
}

func (l *Ledger) topicRowsLocked(userID, topicID string) []*types.ResourceProgress {
	ids := sortedKeys(l.index[userID][topicID])
	out := make([]*types.ResourceProgress, 0, len(ids))
	for _, id := range ids {
		if r := l.resources[ResourceKey{UserID: userID, TopicID: topicID, ResourceID: id}]; r != nil {
			out = append(out, r.Clone())
		}
	}
	return out
}

func normalizeRow(r *types.ResourceProgress) *types.ResourceProgress {
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.CompletedAt != nil {
		c := r.CompletedAt.UTC()
		r.CompletedAt = &c
	}
	return r
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
