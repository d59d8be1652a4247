package progress

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
)

var csvHeader = []string{
	"topicId", "resourceId", "resourceTitle", "resourceType", "level",
	"status", "rating", "notes", "completedAt", "createdAt", "updatedAt",
}

// WriteCSV renders the resource rows of an export, one line per row,
// ordered by topic then resource.
func WriteCSV(w io.Writer, data ExportData) error {
	recs := make([]ResourceRecord, 0, len(data.UserData.ResourceProgress))
	for _, r := range data.UserData.ResourceProgress {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].TopicID != recs[j].TopicID {
			return recs[i].TopicID < recs[j].TopicID
		}
		return recs[i].ResourceID < recs[j].ResourceID
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range recs {
		line := []string{
			r.TopicID, r.ResourceID, r.ResourceTitle, r.ResourceType, r.Level, r.Status,
			"", "", "", isoMillis(r.CreatedAt), isoMillis(r.UpdatedAt),
		}
		if r.Rating != nil {
			line[6] = strconv.Itoa(*r.Rating)
		}
		if r.Notes != nil {
			line[7] = *r.Notes
		}
		if r.CompletedAt != nil {
			line[8] = isoMillis(*r.CompletedAt)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// isoMillisLayout matches exportDate: UTC, millisecond precision, "Z" suffix.
const isoMillisLayout = "2006-01-02T15:04:05.000Z07:00"

func isoMillis(m Millis) string {
	return m.Time().Format(isoMillisLayout)
}
