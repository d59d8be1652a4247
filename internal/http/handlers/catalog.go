package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/roadmap-tracker/internal/catalog"
	"github.com/yungbote/roadmap-tracker/internal/http/response"
	"github.com/yungbote/roadmap-tracker/internal/progress"
)

type CatalogHandler struct {
	catalog *catalog.Catalog
}

func NewCatalogHandler(cat *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: cat}
}

type topicSummary struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Icon        string               `json:"icon,omitempty"`
	LevelTotals progress.LevelCounts `json:"levelTotals"`
	Resources   catalog.TypeCounts   `json:"resources"`
}

// GET /api/catalog/topics
func (h *CatalogHandler) ListTopics(c *gin.Context) {
	topics := h.catalog.Topics()
	out := make([]topicSummary, 0, len(topics))
	for _, t := range topics {
		totals, _ := h.catalog.LevelTotals(t.ID)
		counts, _ := h.catalog.ResourceCounts(t.ID)
		out = append(out, topicSummary{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Icon:        t.Icon,
			LevelTotals: totals,
			Resources:   counts,
		})
	}
	response.RespondOK(c, gin.H{"topics": out})
}

// GET /api/catalog/topics/:topicId
func (h *CatalogHandler) GetTopic(c *gin.Context) {
	topicID := c.Param("topicId")
	topic, err := h.catalog.Topic(topicID)
	if err != nil {
		response.RespondAPIError(c, err, "catalog_failed")
		return
	}
	entries, _ := h.catalog.Entries(topicID)
	totals, _ := h.catalog.LevelTotals(topicID)
	response.RespondOK(c, gin.H{
		"topic":       topic,
		"entries":     entries,
		"levelTotals": totals,
	})
}
