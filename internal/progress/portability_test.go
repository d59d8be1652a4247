package progress

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
)

func seedExport(t *testing.T) (*Ledger, []byte) {
	t.Helper()
	l, _ := newTestLedger(t)
	m := mark("ali", "quran", "quran-basic-Iqra 1", types.LevelBasic, types.StatusCompleted)
	m.Notes = strPtr("done with makhraj")
	m.Rating = intPtr(5)
	for _, mk := range []Mark{
		m,
		mark("ali", "quran", "quran-advanced-Tafsir", types.LevelAdvanced, types.StatusInProgress),
		mark("ali", "fiqh", "fiqh-basic-Thaharah", types.LevelBasic, types.StatusNotStarted),
		mark("umar", "quran", "quran-basic-Iqra 1", types.LevelBasic, types.StatusCompleted),
	} {
		if _, err := l.MarkResourceProgress(bg(), mk); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	date, _ := ParseDate("2026-06-01")
	if _, err := l.SetTopicGoal(bg(), "ali", "quran", GoalPatch{TargetCompletionDate: &date, WeeklyTarget: intPtr(2)}); err != nil {
		t.Fatalf("goal: %v", err)
	}
	raw, err := json.Marshal(l.Export("ali", ExportOptions{Format: FormatJSON}))
	if err != nil {
		t.Fatalf("marshal export: %v", err)
	}
	return l, raw
}

func TestExport(t *testing.T) {
	l, _ := seedExport(t)

	full := l.Export("ali", ExportOptions{})
	if full.Version != "1.0" || full.UserID != "ali" {
		t.Fatalf("envelope: %+v", full)
	}
	if !strings.HasSuffix(full.ExportDate, "Z") || !strings.Contains(full.ExportDate, "T09:30:00.123") {
		t.Fatalf("exportDate: %q", full.ExportDate)
	}
	want := ExportMetadata{TotalTopics: 2, TotalResources: 3, CompletedResources: 1, ExportType: ExportFull}
	if full.Metadata != want {
		t.Fatalf("metadata: got=%+v want=%+v", full.Metadata, want)
	}
	rec, ok := full.UserData.ResourceProgress["ali-quran-quran-basic-Iqra 1"]
	if !ok {
		t.Fatalf("missing dashed key, have %v", keys(full.UserData.ResourceProgress))
	}
	if rec.CompletedAt == nil || *rec.CompletedAt != rec.UpdatedAt {
		t.Fatalf("completedAt: %+v", rec)
	}
	goal, ok := full.UserData.TopicGoals["ali-quran"]
	if !ok || goal.TargetCompletionDate == nil || *goal.TargetCompletionDate != "2026-06-01" {
		t.Fatalf("goal: %+v", goal)
	}

	topic := l.Export("ali", ExportOptions{TopicID: "fiqh"})
	if topic.Metadata.ExportType != ExportTopic || topic.Metadata.TotalResources != 1 || len(topic.UserData.TopicGoals) != 0 {
		t.Fatalf("topic export: %+v", topic.Metadata)
	}

	empty := l.Export("nobody", ExportOptions{})
	if empty.Metadata.TotalResources != 0 || empty.UserData.ResourceProgress == nil {
		t.Fatalf("empty export: %+v", empty)
	}
}

func TestExportKeepsCollidingKeys(t *testing.T) {
	l, _ := newTestLedger(t)
	for _, m := range []Mark{
		mark("u", "a-b", "c", types.LevelBasic, types.StatusCompleted),
		mark("u", "a", "b-c", types.LevelBasic, types.StatusCompleted),
	} {
		if _, err := l.MarkResourceProgress(bg(), m); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	data := l.Export("u", ExportOptions{})
	if len(data.UserData.ResourceProgress) != 2 {
		t.Fatalf("colliding rows collapsed: %v", keys(data.UserData.ResourceProgress))
	}
}

func TestImportRoundTrip(t *testing.T) {
	src, raw := seedExport(t)

	dst, _ := newTestLedger(t)
	res, err := dst.Import(bg(), raw, ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !res.Success || res.Imported != 3 || res.Message != "Successfully imported 3 items" {
		t.Fatalf("result: %+v", res)
	}
	for _, topic := range []string{"quran", "fiqh"} {
		want := src.GetTopicProgress("ali", topic)
		got := dst.GetTopicProgress("ali", topic)
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("topic %s differs after round trip:\nwant %+v\ngot  %+v", topic, want, got)
		}
	}
	if !reflect.DeepEqual(src.GetTopicGoal("ali", "quran"), dst.GetTopicGoal("ali", "quran")) {
		t.Fatalf("goal differs after round trip")
	}
	if dst.GetUserResourceProgress("umar", "quran", "quran-basic-Iqra 1") != nil {
		t.Fatalf("other user's row leaked into export")
	}

	again, err := src.Import(bg(), raw, ImportOptions{})
	if err != nil || !again.Success {
		t.Fatalf("re-import into source: %+v %v", again, err)
	}
	if !reflect.DeepEqual(src.UserResources("ali", ""), dst.UserResources("ali", "")) {
		t.Fatalf("re-import changed the exporting ledger")
	}
}

func TestImportMergeVersusSkip(t *testing.T) {
	incoming := func(t *testing.T) []byte {
		t.Helper()
		l, _ := newTestLedger(t)
		if _, err := l.MarkResourceProgress(bg(), mark("U", "quran", "r1", types.LevelBasic, types.StatusInProgress)); err != nil {
			t.Fatalf("mark: %v", err)
		}
		raw, _ := json.Marshal(l.Export("U", ExportOptions{}))
		return raw
	}(t)

	merge, skip := true, false
	cases := []struct {
		name     string
		merge    *bool
		want     types.Status
		imported int
	}{
		{"default merges", nil, types.StatusInProgress, 1},
		{"merge", &merge, types.StatusInProgress, 1},
		{"no merge", &skip, types.StatusCompleted, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newTestLedger(t)
			if _, err := l.MarkResourceProgress(bg(), mark("U", "quran", "r1", types.LevelBasic, types.StatusCompleted)); err != nil {
				t.Fatalf("seed: %v", err)
			}
			res, err := l.Import(bg(), incoming, ImportOptions{Merge: tc.merge})
			if err != nil || !res.Success {
				t.Fatalf("Import: %+v %v", res, err)
			}
			if res.Imported != tc.imported {
				t.Fatalf("imported: got=%d want=%d", res.Imported, tc.imported)
			}
			if got := l.GetUserResourceProgress("U", "quran", "r1").Status; got != tc.want {
				t.Fatalf("status: got=%s want=%s", got, tc.want)
			}
		})
	}
}

func TestImportUserOverrideRewritesOnlyUserField(t *testing.T) {
	l, _ := newTestLedger(t)
	// The source user id also appears inside the topic and resource ids.
	raw := []byte(`{
		"version": "1.0",
		"exportDate": "2026-01-01T00:00:00.000Z",
		"userId": "ab",
		"userData": {
			"resourceProgress": {
				"ab-tab-ab-1": {
					"userId": "ab", "topicId": "tab", "resourceId": "ab-1",
					"resourceTitle": "Arba'in", "resourceType": "book",
					"level": "basic", "status": "completed",
					"completedAt": 1767225600000, "createdAt": 1767225600000, "updatedAt": 1767225600000
				}
			},
			"topicGoals": {
				"ab-tab": {"userId": "ab", "topicId": "tab", "weeklyTarget": 1, "createdAt": 1767225600000, "updatedAt": 1767225600000}
			}
		},
		"metadata": {"totalTopics": 1, "totalResources": 1, "completedResources": 1, "exportType": "full"}
	}`)
	res, err := l.Import(bg(), raw, ImportOptions{UserID: "xy"})
	if err != nil || !res.Success || res.Imported != 1 {
		t.Fatalf("Import: %+v %v", res, err)
	}
	row := l.GetUserResourceProgress("xy", "tab", "ab-1")
	if row == nil {
		t.Fatalf("row not re-homed to xy; have %+v", l.UserResources("xy", ""))
	}
	if row.UserID != "xy" || row.TopicID != "tab" || row.ResourceID != "ab-1" {
		t.Fatalf("key fields: %+v", row)
	}
	if row.CompletedAt == nil || row.CompletedAt.UnixMilli() != 1767225600000 {
		t.Fatalf("completedAt: %v", row.CompletedAt)
	}
	if g := l.GetTopicGoal("xy", "tab"); g == nil || *g.WeeklyTarget != 1 {
		t.Fatalf("goal not re-homed: %+v", g)
	}
	if len(l.UserResources("ab", "")) != 0 {
		t.Fatalf("rows written under the source user")
	}
}

func TestValidateImportData(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"not json", `nope`, []string{"Invalid data format"}},
		{"null", `null`, []string{"Invalid data format"}},
		{"string", `"export"`, []string{"Invalid data format"}},
		{"empty object", `{}`, []string{"Missing version information", "Missing user ID", "Missing user data"}},
		{"user data not object", `{"version":"1.0","userId":"u","userData":"x"}`, []string{"Missing user data", "Missing resource progress data"}},
		{"missing progress", `{"version":"1.0","userId":"u","userData":{}}`, []string{"Missing resource progress data"}},
		{"user data array", `{"version":"1.0","userId":"u","userData":[]}`, []string{"Missing resource progress data"}},
		{"user data null", `{"version":"1.0","userId":"u","userData":null}`, []string{"Missing user data"}},
		{"empty version", `{"version":"","userId":"u","userData":{"resourceProgress":{}}}`, []string{"Missing version information"}},
		{"valid", `{"version":"1.0","userId":"u","userData":{"resourceProgress":{}}}`, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateImportData([]byte(tc.raw))
			if got.Valid != (len(tc.want) == 0) {
				t.Fatalf("valid: got=%v errors=%v", got.Valid, got.Errors)
			}
			if !reflect.DeepEqual(got.Errors, tc.want) {
				t.Fatalf("errors: got=%q want=%q", got.Errors, tc.want)
			}
		})
	}
}

func TestInvalidImportLeavesLedgerUntouched(t *testing.T) {
	l, _ := seedExport(t)
	before, _ := json.Marshal(l.Export("ali", ExportOptions{}))

	res, err := l.Import(bg(), []byte(`{}`), ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Success || res.Imported != 0 {
		t.Fatalf("result: %+v", res)
	}
	if res.Message != "Import failed: Missing version information, Missing user ID, Missing user data" {
		t.Fatalf("message: %q", res.Message)
	}

	after, _ := json.Marshal(l.Export("ali", ExportOptions{}))
	if !bytes.Equal(before, after) {
		t.Fatalf("ledger changed by rejected import")
	}
}

func TestImportRejectsBatchWithBadRow(t *testing.T) {
	l, _ := newTestLedger(t)
	raw := []byte(`{
		"version": "1.0",
		"userId": "u",
		"userData": {
			"resourceProgress": {
				"u-quran-r1": {"userId":"u","topicId":"quran","resourceId":"r1","resourceType":"video","level":"basic","status":"completed","createdAt":1,"updatedAt":2},
				"u-quran-r2": "not a row",
				"u-quran-r3": {"userId":"u","topicId":"quran","resourceId":"r3","resourceType":"podcast","level":"basic","status":"completed","createdAt":1,"updatedAt":2}
			}
		}
	}`)
	res, err := l.Import(bg(), raw, ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Success {
		t.Fatalf("expected rejection: %+v", res)
	}
	if !strings.Contains(res.Message, "u-quran-r2") || !strings.Contains(res.Message, `unknown resourceType "podcast"`) {
		t.Fatalf("message should name both bad rows: %q", res.Message)
	}
	if l.GetUserResourceProgress("u", "quran", "r1") != nil {
		t.Fatalf("good row committed despite rejected batch")
	}
}

func TestMillisAcceptsISOStrings(t *testing.T) {
	var rec ResourceRecord
	raw := `{"topicId":"t","resourceId":"r","createdAt":"2026-01-01T00:00:00Z","updatedAt":1767225600000.0}`
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.CreatedAt != rec.UpdatedAt || rec.CreatedAt != 1767225600000 {
		t.Fatalf("millis: created=%d updated=%d", rec.CreatedAt, rec.UpdatedAt)
	}
}

func TestWriteCSV(t *testing.T) {
	l, _ := seedExport(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, l.Export("ali", ExportOptions{Format: FormatCSV})); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines: got=%d want=4\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "topicId,resourceId") {
		t.Fatalf("header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "fiqh,") {
		t.Fatalf("rows not ordered by topic: %q", lines[1])
	}
}

func keys[V any](m map[string]V) []string { return sortedKeys(m) }
