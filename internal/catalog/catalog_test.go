package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/progress"
)

func TestDefaultCatalogLevelTotals(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	cases := []struct {
		topic string
		want  progress.LevelCounts
	}{
		{"quran", progress.LevelCounts{Basic: 4, Intermediate: 2, Advanced: 1}},
		{"fiqh", progress.LevelCounts{Basic: 3, Intermediate: 1}},
		{"arabic", progress.LevelCounts{Basic: 2, Intermediate: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.topic, func(t *testing.T) {
			got, err := c.LevelTotals(tc.topic)
			if err != nil {
				t.Fatalf("LevelTotals: %v", err)
			}
			if got != tc.want {
				t.Fatalf("totals: got=%+v want=%+v", got, tc.want)
			}
		})
	}
	if len(c.AllLevelTotals()) != len(c.Topics()) {
		t.Fatalf("AllLevelTotals should cover every topic")
	}
}

func TestResourceCounts(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	got, err := c.ResourceCounts("quran")
	if err != nil {
		t.Fatalf("ResourceCounts: %v", err)
	}
	if got != (TypeCounts{Videos: 6, Articles: 2, Books: 3}) {
		t.Fatalf("counts: %+v", got)
	}
}

func TestUnknownTopic(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if _, err := c.LevelTotals("astronomy"); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("want ErrTopicNotFound, got %v", err)
	}
}

func TestResourceID(t *testing.T) {
	cases := []struct {
		node, title, want string
	}{
		{"quran-basic", "Pengenalan Huruf Hijaiyah", "quran-basic-pengenalan-huruf-hijaiyah"},
		{"quran-basic-sub", "Latihan  Pengucapan", "quran-basic-sub-latihan-pengucapan"},
		{"fiqh-basic", "Dasar-dasar Fiqih", "fiqh-basic-dasar-dasar-fiqih"},
	}
	for _, tc := range cases {
		if got := ResourceID(tc.node, tc.title); got != tc.want {
			t.Fatalf("ResourceID(%q,%q): got=%q want=%q", tc.node, tc.title, got, tc.want)
		}
	}
}

func TestLookupSubResource(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	e, ok := c.Lookup("quran", "quran-basic-sub-latihan-pengucapan")
	if !ok {
		t.Fatalf("sub-resource not found")
	}
	if e.Level != types.LevelBasic || e.Type != types.ResourceVideo || e.NodeID != "quran-basic-sub" {
		t.Fatalf("entry: %+v", e)
	}
	entries, err := c.Entries("quran")
	if err != nil || len(entries) != 7 {
		t.Fatalf("Entries: len=%d err=%v", len(entries), err)
	}
}

func TestParseRejectsBadCatalog(t *testing.T) {
	cases := map[string]string{
		"duplicate": "topics:\n- id: a\n- id: a\n",
		"no id":     "topics:\n- title: x\n",
		"level":     "topics:\n- id: a\n  nodes:\n  - id: n\n    level: expert\n",
		"type": "topics:\n- id: a\n  nodes:\n  - id: n\n    level: basic\n    resources:\n    - title: t\n      type: podcast\n",
		"yaml":  "topics: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	raw := "topics:\n- id: tazkiyah\n  title: Tazkiyatun Nafs\n  nodes:\n  - id: tz-basic\n    level: basic\n    resources:\n    - title: Muhasabah\n      type: article\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if totals, _ := c.LevelTotals("tazkiyah"); totals.Basic != 1 {
		t.Fatalf("totals: %+v", totals)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
