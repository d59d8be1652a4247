package achievement

import "github.com/yungbote/roadmap-tracker/internal/progress"

type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`

	met func(progress.OverallStats) bool
}

// Catalog is the fixed set of badges, in display order.
var Catalog = []Achievement{
	{
		ID: "first-resource", Title: "Langkah Pertama", Description: "Selesaikan resource pertama Anda", Icon: "🎯",
		met: func(s progress.OverallStats) bool { return s.TotalResourcesCompleted >= 1 },
	},
	{
		ID: "consistent-learner", Title: "Pembelajar Konsisten", Description: "Selesaikan 5 resource", Icon: "📚",
		met: func(s progress.OverallStats) bool { return s.TotalResourcesCompleted >= 5 },
	},
	{
		ID: "dedicated-student", Title: "Siswa Berdedikasi", Description: "Selesaikan 15 resource", Icon: "🌟",
		met: func(s progress.OverallStats) bool { return s.TotalResourcesCompleted >= 15 },
	},
	{
		ID: "knowledge-seeker", Title: "Pencari Ilmu", Description: "Selesaikan 30 resource", Icon: "🎓",
		met: func(s progress.OverallStats) bool { return s.TotalResourcesCompleted >= 30 },
	},
	{
		ID: "topic-explorer", Title: "Penjelajah Topik", Description: "Aktif dalam 3 topik berbeda", Icon: "🗺️",
		met: func(s progress.OverallStats) bool { return s.ActiveTopics >= 3 },
	},
	{
		ID: "streak-starter", Title: "Pemula Konsisten", Description: "Belajar 2 hari berturut-turut", Icon: "🔥",
		met: func(s progress.OverallStats) bool { return s.CurrentStreak >= 2 },
	},
}

type Report struct {
	Unlocked      []Achievement `json:"unlocked"`
	Locked        []Achievement `json:"locked"`
	UnlockedCount int           `json:"unlockedCount"`
	Total         int           `json:"total"`
	Percentage    int           `json:"percentage"`
}

func Evaluate(stats progress.OverallStats) Report {
	r := Report{Unlocked: []Achievement{}, Locked: []Achievement{}, Total: len(Catalog)}
	for _, a := range Catalog {
		if a.met(stats) {
			r.Unlocked = append(r.Unlocked, a)
		} else {
			r.Locked = append(r.Locked, a)
		}
	}
	r.UnlockedCount = len(r.Unlocked)
	r.Percentage = progress.Percentage(r.UnlockedCount, r.Total)
	return r
}
