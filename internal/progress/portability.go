package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
)

const ExportVersion = "1.0"

type ExportType string

const (
	ExportFull    ExportType = "full"
	ExportTopic   ExportType = "topic"
	ExportPartial ExportType = "partial"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func (f Format) Valid() bool { return f == FormatJSON || f == FormatCSV }

// Millis is a timestamp on the wire as epoch milliseconds. Decoding also
// accepts fractional numbers and RFC 3339 strings.
type Millis int64

func MillisOf(t time.Time) Millis { return Millis(t.UnixMilli()) }

func (m Millis) Time() time.Time { return time.UnixMilli(int64(m)).UTC() }

func (m *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q", s)
		}
		*m = MillisOf(t)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s", b)
	}
	*m = Millis(int64(f))
	return nil
}

// ResourceRecord is a ResourceProgress row in transfer form.
type ResourceRecord struct {
	UserID        string  `json:"userId"`
	TopicID       string  `json:"topicId"`
	ResourceID    string  `json:"resourceId"`
	ResourceTitle string  `json:"resourceTitle"`
	ResourceType  string  `json:"resourceType"`
	Level         string  `json:"level"`
	Status        string  `json:"status"`
	Notes         *string `json:"notes,omitempty"`
	Rating        *int    `json:"rating,omitempty"`
	CompletedAt   *Millis `json:"completedAt,omitempty"`
	CreatedAt     Millis  `json:"createdAt"`
	UpdatedAt     Millis  `json:"updatedAt"`
}

// GoalRecord is a TopicGoal in transfer form; the target date is YYYY-MM-DD.
type GoalRecord struct {
	UserID               string  `json:"userId"`
	TopicID              string  `json:"topicId"`
	TargetCompletionDate *string `json:"targetCompletionDate,omitempty"`
	WeeklyTarget         *int    `json:"weeklyTarget,omitempty"`
	PersonalNotes        *string `json:"personalNotes,omitempty"`
	CreatedAt            Millis  `json:"createdAt"`
	UpdatedAt            Millis  `json:"updatedAt"`
}

type UserData struct {
	ResourceProgress map[string]ResourceRecord `json:"resourceProgress"`
	TopicGoals       map[string]GoalRecord     `json:"topicGoals"`
}

type ExportMetadata struct {
	TotalTopics        int        `json:"totalTopics"`
	TotalResources     int        `json:"totalResources"`
	CompletedResources int        `json:"completedResources"`
	ExportType         ExportType `json:"exportType"`
}

type ExportData struct {
	Version    string         `json:"version"`
	ExportDate string         `json:"exportDate"`
	UserID     string         `json:"userId"`
	UserData   UserData       `json:"userData"`
	Metadata   ExportMetadata `json:"metadata"`
}

type ExportOptions struct {
	TopicID string
	// Format labels the download only; the data is identical.
	Format Format
}

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

type ImportOptions struct {
	// Merge overwrites existing rows when true (the default when nil) and
	// keeps them when false.
	Merge *bool
	// UserID, when set, re-homes every imported row to this user.
	UserID string
}

func (o ImportOptions) merge() bool { return o.Merge == nil || *o.Merge }

type ImportResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Imported int    `json:"imported"`
}

func NewResourceRecord(r *types.ResourceProgress) ResourceRecord {
	rec := ResourceRecord{
		UserID:        r.UserID,
		TopicID:       r.TopicID,
		ResourceID:    r.ResourceID,
		ResourceTitle: r.ResourceTitle,
		ResourceType:  string(r.ResourceType),
		Level:         string(r.Level),
		Status:        string(r.Status),
		Notes:         r.Notes,
		Rating:        r.Rating,
		CreatedAt:     MillisOf(r.CreatedAt),
		UpdatedAt:     MillisOf(r.UpdatedAt),
	}
	if r.CompletedAt != nil {
		c := MillisOf(*r.CompletedAt)
		rec.CompletedAt = &c
	}
	return rec
}

func NewGoalRecord(g *types.TopicGoal) GoalRecord {
	rec := GoalRecord{
		UserID:        g.UserID,
		TopicID:       g.TopicID,
		WeeklyTarget:  g.WeeklyTarget,
		PersonalNotes: g.PersonalNotes,
		CreatedAt:     MillisOf(g.CreatedAt),
		UpdatedAt:     MillisOf(g.UpdatedAt),
	}
	if g.TargetCompletionDate != nil {
		s := FormatDate(*g.TargetCompletionDate)
		rec.TargetCompletionDate = &s
	}
	return rec
}

// ParseDate reads a YYYY-MM-DD calendar date. Full RFC 3339 timestamps are
// accepted and cut to their date.
func ParseDate(s string) (datatypes.Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return datatypes.Date(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return datatypes.Date{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)), nil
}

func FormatDate(d datatypes.Date) string {
	return time.Time(d).Format(time.DateOnly)
}

// ResourceWireKey is the map key previous clients used for a row. Keys are
// opaque on import; rows are re-keyed from their own fields.
func ResourceWireKey(userID, topicID, resourceID string) string {
	return userID + "-" + topicID + "-" + resourceID
}

func GoalWireKey(userID, topicID string) string {
	return userID + "-" + topicID
}

// Export snapshots the user's rows and goals, optionally for one topic.
func (l *Ledger) Export(userID string, opts ExportOptions) ExportData {
	rows := l.UserResources(userID, opts.TopicID)
	goals := l.UserGoals(userID, opts.TopicID)

	data := ExportData{
		Version:    ExportVersion,
		ExportDate: l.Now().Format(isoMillisLayout),
		UserID:     userID,
		UserData: UserData{
			ResourceProgress: make(map[string]ResourceRecord, len(rows)),
			TopicGoals:       make(map[string]GoalRecord, len(goals)),
		},
		Metadata: ExportMetadata{ExportType: ExportFull},
	}
	if opts.TopicID != "" {
		data.Metadata.ExportType = ExportTopic
	}

	topics := map[string]struct{}{}
	for _, r := range rows {
		key := uniqueKey(data.UserData.ResourceProgress, ResourceWireKey(r.UserID, r.TopicID, r.ResourceID))
		data.UserData.ResourceProgress[key] = NewResourceRecord(r)
		topics[r.TopicID] = struct{}{}
		if r.Status == types.StatusCompleted {
			data.Metadata.CompletedResources++
		}
	}
	for _, g := range goals {
		data.UserData.TopicGoals[GoalWireKey(g.UserID, g.TopicID)] = NewGoalRecord(g)
	}
	data.Metadata.TotalTopics = len(topics)
	data.Metadata.TotalResources = len(rows)
	return data
}

// Two distinct (topic, resource) pairs can join to the same dashed key.
// The later one gets a numeric suffix so neither row is lost.
func uniqueKey[V any](m map[string]V, key string) string {
	if _, taken := m[key]; !taken {
		return key
	}
	for i := 2; ; i++ {
		k := key + "~" + strconv.Itoa(i)
		if _, taken := m[k]; !taken {
			return k
		}
	}
}

// ValidateImportData checks the envelope of a transfer document. Individual
// rows are checked later, during Import.
func ValidateImportData(raw []byte) ValidationResult {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ValidationResult{Valid: false, Errors: []string{"Invalid data format"}}
	}
	var obj map[string]any
	switch v := doc.(type) {
	case map[string]any:
		obj = v
	case []any:
		obj = map[string]any{}
	default:
		return ValidationResult{Valid: false, Errors: []string{"Invalid data format"}}
	}

	errs := []string{}
	if !truthy(obj["version"]) {
		errs = append(errs, "Missing version information")
	}
	if !truthy(obj["userId"]) {
		errs = append(errs, "Missing user ID")
	}
	// An array counts as an object here, as it does for the document itself.
	userData, isMap := obj["userData"].(map[string]any)
	_, isArray := obj["userData"].([]any)
	if !isMap && !isArray {
		errs = append(errs, "Missing user data")
	}
	if truthy(obj["userData"]) && !truthy(userData["resourceProgress"]) {
		errs = append(errs, "Missing resource progress data")
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Import validates raw, decodes and checks every row, and only then writes.
// A single bad row rejects the whole document with nothing applied.
func (l *Ledger) Import(dbc dbctx.Context, raw []byte, opts ImportOptions) (ImportResult, error) {
	if v := ValidateImportData(raw); !v.Valid {
		return failed(v.Errors), nil
	}
	rows, goals, errs := l.decodeImport(raw, opts)
	if len(errs) > 0 {
		return failed(errs), nil
	}
	imported, err := l.applyBatch(dbc, rows, goals, opts.merge())
	l.log.Info("progress import applied",
		"user_id", opts.UserID,
		"rows", len(rows),
		"goals", len(goals),
		"imported", imported,
		"merge", opts.merge(),
	)
	res := ImportResult{
		Success:  true,
		Message:  fmt.Sprintf("Successfully imported %d items", imported),
		Imported: imported,
	}
	return res, err
}

func failed(errs []string) ImportResult {
	return ImportResult{
		Success:  false,
		Message:  "Import failed: " + strings.Join(errs, ", "),
		Imported: 0,
	}
}

type importEnvelope struct {
	UserID   string `json:"userId"`
	UserData struct {
		ResourceProgress map[string]json.RawMessage `json:"resourceProgress"`
		TopicGoals       map[string]json.RawMessage `json:"topicGoals"`
	} `json:"userData"`
}

func (l *Ledger) decodeImport(raw []byte, opts ImportOptions) ([]*types.ResourceProgress, []*types.TopicGoal, []string) {
	var env importEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, []string{"Invalid data format"}
	}
	now := l.Now()
	owner := func(rowUser string) string {
		if opts.UserID != "" {
			return opts.UserID
		}
		if rowUser != "" {
			return rowUser
		}
		return env.UserID
	}

	errs := []string{}
	rows := make([]*types.ResourceProgress, 0, len(env.UserData.ResourceProgress))
	for _, key := range sortedKeys(env.UserData.ResourceProgress) {
		var rec ResourceRecord
		if err := json.Unmarshal(env.UserData.ResourceProgress[key], &rec); err != nil {
			errs = append(errs, fmt.Sprintf("Invalid resource progress entry %s", key))
			continue
		}
		row, err := rec.toRow(owner(rec.UserID), now)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Invalid resource progress entry %s: %v", key, err))
			continue
		}
		rows = append(rows, row)
	}

	goals := make([]*types.TopicGoal, 0, len(env.UserData.TopicGoals))
	for _, key := range sortedKeys(env.UserData.TopicGoals) {
		var rec GoalRecord
		if err := json.Unmarshal(env.UserData.TopicGoals[key], &rec); err != nil {
			errs = append(errs, fmt.Sprintf("Invalid topic goal entry %s", key))
			continue
		}
		goal, err := rec.toGoal(owner(rec.UserID), now)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Invalid topic goal entry %s: %v", key, err))
			continue
		}
		goals = append(goals, goal)
	}
	return rows, goals, errs
}

func (rec ResourceRecord) toRow(userID string, now time.Time) (*types.ResourceProgress, error) {
	switch {
	case strings.TrimSpace(rec.TopicID) == "":
		return nil, fmt.Errorf("missing topicId")
	case strings.TrimSpace(rec.ResourceID) == "":
		return nil, fmt.Errorf("missing resourceId")
	case !types.ResourceType(rec.ResourceType).Valid():
		return nil, fmt.Errorf("unknown resourceType %q", rec.ResourceType)
	case !types.Level(rec.Level).Valid():
		return nil, fmt.Errorf("unknown level %q", rec.Level)
	case !types.Status(rec.Status).Valid():
		return nil, fmt.Errorf("unknown status %q", rec.Status)
	}
	row := &types.ResourceProgress{
		UserID:        userID,
		TopicID:       rec.TopicID,
		ResourceID:    rec.ResourceID,
		ResourceTitle: rec.ResourceTitle,
		ResourceType:  types.ResourceType(rec.ResourceType),
		Level:         types.Level(rec.Level),
		Status:        types.Status(rec.Status),
		Notes:         rec.Notes,
		Rating:        rec.Rating,
	}
	row.CreatedAt, row.UpdatedAt = stamps(rec.CreatedAt, rec.UpdatedAt, now)
	if rec.CompletedAt != nil && *rec.CompletedAt != 0 {
		c := rec.CompletedAt.Time()
		row.CompletedAt = &c
	}
	return row, nil
}

func (rec GoalRecord) toGoal(userID string, now time.Time) (*types.TopicGoal, error) {
	if strings.TrimSpace(rec.TopicID) == "" {
		return nil, fmt.Errorf("missing topicId")
	}
	goal := &types.TopicGoal{
		UserID:        userID,
		TopicID:       rec.TopicID,
		WeeklyTarget:  rec.WeeklyTarget,
		PersonalNotes: rec.PersonalNotes,
	}
	if rec.TargetCompletionDate != nil && strings.TrimSpace(*rec.TargetCompletionDate) != "" {
		d, err := ParseDate(*rec.TargetCompletionDate)
		if err != nil {
			return nil, err
		}
		goal.TargetCompletionDate = &d
	}
	goal.CreatedAt, goal.UpdatedAt = stamps(rec.CreatedAt, rec.UpdatedAt, now)
	return goal, nil
}

// Missing timestamps fall back to now, and a missing updatedAt to createdAt.
func stamps(created, updated Millis, now time.Time) (time.Time, time.Time) {
	c := now
	if created != 0 {
		c = created.Time()
	}
	u := c
	if updated != 0 {
		u = updated.Time()
	}
	return c, u
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
