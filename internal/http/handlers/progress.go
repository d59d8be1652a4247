package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/roadmap-tracker/internal/achievement"
	"github.com/yungbote/roadmap-tracker/internal/catalog"
	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/http/response"
	"github.com/yungbote/roadmap-tracker/internal/observability"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
	"github.com/yungbote/roadmap-tracker/internal/platform/apierr"
	"github.com/yungbote/roadmap-tracker/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/progress"
)

const maxImportBytes = 10 << 20

type ProgressHandler struct {
	log     *logger.Logger
	ledger  *progress.Ledger
	catalog *catalog.Catalog
	metrics *observability.Metrics
}

func NewProgressHandler(log *logger.Logger, ledger *progress.Ledger, cat *catalog.Catalog, metrics *observability.Metrics) *ProgressHandler {
	return &ProgressHandler{
		log:     log.With("handler", "ProgressHandler"),
		ledger:  ledger,
		catalog: cat,
		metrics: metrics,
	}
}

func dbcOf(c *gin.Context) dbctx.Context {
	return dbctx.New(c.Request.Context())
}

// mirrorFailed logs a durable-write failure and reports whether err was one.
// Anything else is left to the caller.
func (h *ProgressHandler) mirrorFailed(c *gin.Context, op string, err error) bool {
	if !errors.Is(err, progress.ErrMirror) {
		return false
	}
	h.metrics.IncMirrorFailure(op)
	fields := append([]interface{}{"op", op, "error", err}, ctxutil.LogFields(c.Request.Context())...)
	h.log.Warn("progress persisted in memory only, queued for reconcile", fields...)
	return true
}

type markRequest struct {
	ResourceTitle *string `json:"resourceTitle"`
	ResourceType  string  `json:"resourceType" binding:"omitempty,oneof=video article book"`
	Level         string  `json:"level" binding:"omitempty,oneof=basic intermediate advanced"`
	Status        string  `json:"status" binding:"required,oneof=not_started in_progress completed"`
	Notes         *string `json:"notes"`
	Rating        *int    `json:"rating" binding:"omitempty,min=1,max=5"`
}

// PUT /api/progress/topics/:topicId/resources/:resourceId
func (h *ProgressHandler) MarkResource(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	topicID := strings.TrimSpace(c.Param("topicId"))
	resourceID := strings.TrimSpace(c.Param("resourceId"))
	if topicID == "" || resourceID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_resource", fmt.Errorf("topicId and resourceId are required"))
		return
	}

	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", bindingMessage(err))
		return
	}

	mark := progress.Mark{
		UserID:     userID,
		TopicID:    topicID,
		ResourceID: resourceID,
		Type:       types.ResourceType(req.ResourceType),
		Level:      types.Level(req.Level),
		Status:     types.Status(req.Status),
		Notes:      req.Notes,
		Rating:     req.Rating,
	}
	if req.ResourceTitle != nil {
		mark.Title = strings.TrimSpace(*req.ResourceTitle)
	}
	// The roadmap fills in whatever the client left out.
	if mark.Title == "" || mark.Type == "" || mark.Level == "" {
		entry, ok := h.catalog.Lookup(topicID, resourceID)
		if !ok {
			response.RespondError(c, http.StatusBadRequest, "unknown_resource",
				fmt.Errorf("resource %q is not on the %q roadmap; resourceTitle, resourceType and level are required", resourceID, topicID))
			return
		}
		if mark.Title == "" {
			mark.Title = entry.Title
		}
		if mark.Type == "" {
			mark.Type = entry.Type
		}
		if mark.Level == "" {
			mark.Level = entry.Level
		}
	}

	row, err := h.ledger.MarkResourceProgress(dbcOf(c), mark)
	if err != nil && !h.mirrorFailed(c, "mark", err) {
		response.RespondError(c, http.StatusInternalServerError, "mark_progress_failed", err)
		return
	}
	h.metrics.IncProgressMark(string(mark.Status))
	response.RespondOK(c, gin.H{"progress": row})
}

// GET /api/progress/topics/:topicId/resources/:resourceId
func (h *ProgressHandler) GetResource(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	row := h.ledger.GetUserResourceProgress(userID, c.Param("topicId"), c.Param("resourceId"))
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "progress_not_found", fmt.Errorf("no progress recorded for this resource"))
		return
	}
	response.RespondOK(c, gin.H{"progress": row})
}

// GET /api/progress/topics/:topicId
func (h *ProgressHandler) GetTopicProgress(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	rows := h.ledger.GetTopicProgress(userID, c.Param("topicId"))
	response.RespondOK(c, gin.H{"progress": rows})
}

// GET /api/progress/topics/:topicId/stats
func (h *ProgressHandler) GetTopicStats(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	topicID := c.Param("topicId")

	totals, err := h.catalog.LevelTotals(topicID)
	if err != nil && !errors.Is(err, catalog.ErrTopicNotFound) {
		response.RespondError(c, http.StatusInternalServerError, "catalog_failed", err)
		return
	}
	for _, q := range []struct {
		name string
		dst  *int
	}{
		{"basic", &totals.Basic},
		{"intermediate", &totals.Intermediate},
		{"advanced", &totals.Advanced},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_totals", fmt.Errorf("%s must be a non-negative integer", q.name))
			return
		}
		*q.dst = n
	}

	stats := h.ledger.GetTopicStats(userID, topicID, totals)
	response.RespondOK(c, gin.H{"stats": stats})
}

// GET /api/progress/stats
func (h *ProgressHandler) GetOverallStats(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	response.RespondOK(c, gin.H{"stats": h.ledger.GetUserOverallStats(userID)})
}

// GET /api/progress/topics-stats
func (h *ProgressHandler) GetAllTopicsStats(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	stats := h.ledger.GetAllTopicsStats(userID, h.catalog.AllLevelTotals())
	response.RespondOK(c, gin.H{"stats": stats})
}

// GET /api/progress/achievements
func (h *ProgressHandler) GetAchievements(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	report := achievement.Evaluate(h.ledger.GetUserOverallStats(userID))
	response.RespondOK(c, gin.H{"achievements": report})
}

// GET /api/progress/topics/:topicId/goal
func (h *ProgressHandler) GetGoal(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	goal := h.ledger.GetTopicGoal(userID, c.Param("topicId"))
	if goal == nil {
		response.RespondError(c, http.StatusNotFound, "goal_not_found", fmt.Errorf("no goal set for this topic"))
		return
	}
	response.RespondOK(c, gin.H{"goal": progress.NewGoalRecord(goal)})
}

type goalRequest struct {
	TargetCompletionDate *string `json:"targetCompletionDate" binding:"omitempty,ymd"`
	WeeklyTarget         *int    `json:"weeklyTarget" binding:"omitempty,gt=0"`
	PersonalNotes        *string `json:"personalNotes"`
}

// PUT /api/progress/topics/:topicId/goal
func (h *ProgressHandler) SetGoal(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	topicID := strings.TrimSpace(c.Param("topicId"))

	var req goalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", bindingMessage(err))
		return
	}
	patch := progress.GoalPatch{WeeklyTarget: req.WeeklyTarget, PersonalNotes: req.PersonalNotes}
	if req.TargetCompletionDate != nil {
		d, err := progress.ParseDate(*req.TargetCompletionDate)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		patch.TargetCompletionDate = &d
	}

	goal, err := h.ledger.SetTopicGoal(dbcOf(c), userID, topicID, patch)
	if err != nil && !h.mirrorFailed(c, "goal", err) {
		response.RespondError(c, http.StatusInternalServerError, "set_goal_failed", err)
		return
	}
	h.metrics.IncGoalWrite(topicID)
	response.RespondOK(c, gin.H{"goal": progress.NewGoalRecord(goal)})
}

// GET /api/progress/export?topicId=&format=json|csv
func (h *ProgressHandler) Export(c *gin.Context) {
	var spanErr error
	ctx, span := observability.StartSpan(c.Request.Context(), "progress", "export")
	defer func() { observability.FinishSpan(span, spanErr) }()

	userID := ctxutil.UserID(ctx)
	format := progress.Format(strings.ToLower(c.DefaultQuery("format", string(progress.FormatJSON))))
	if !format.Valid() {
		response.RespondError(c, http.StatusBadRequest, "invalid_format", fmt.Errorf("format must be json or csv"))
		return
	}
	topicID := strings.TrimSpace(c.Query("topicId"))

	data := h.ledger.Export(userID, progress.ExportOptions{TopicID: topicID, Format: format})
	span.SetAttributes(
		attribute.String("export.type", string(data.Metadata.ExportType)),
		attribute.String("export.format", string(format)),
		attribute.Int("export.resources", data.Metadata.TotalResources),
	)

	scope := "all"
	if topicID != "" {
		scope = topicID
	}
	filename := fmt.Sprintf("islamic-roadmap-%s-progress-%s.%s", scope, h.ledger.Now().Format("2006-01-02"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	var buf bytes.Buffer
	contentType := "application/json"
	switch format {
	case progress.FormatCSV:
		contentType = "text/csv; charset=utf-8"
		if err := progress.WriteCSV(&buf, data); err != nil {
			spanErr = err
			response.RespondError(c, http.StatusInternalServerError, "export_failed", err)
			return
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			spanErr = err
			response.RespondError(c, http.StatusInternalServerError, "export_failed", err)
			return
		}
	}
	h.metrics.IncExport(string(data.Metadata.ExportType), string(format))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// POST /api/progress/validate
func (h *ProgressHandler) Validate(c *gin.Context) {
	raw, err := readImportBody(c)
	if err != nil {
		response.RespondAPIError(c, err, "invalid_request")
		return
	}
	response.RespondOK(c, gin.H{"validation": progress.ValidateImportData(raw)})
}

// POST /api/progress/import?merge=true|false
// Rows always land in the caller's account.
func (h *ProgressHandler) Import(c *gin.Context) {
	var spanErr error
	ctx, span := observability.StartSpan(c.Request.Context(), "progress", "import")
	defer func() { observability.FinishSpan(span, spanErr) }()

	userID := ctxutil.UserID(ctx)
	opts := progress.ImportOptions{UserID: userID}
	mode := "merge"
	if raw := c.Query("merge"); raw != "" {
		merge, err := strconv.ParseBool(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("merge must be true or false"))
			return
		}
		opts.Merge = &merge
		if !merge {
			mode = "skip"
		}
	}

	raw, err := readImportBody(c)
	if err != nil {
		response.RespondAPIError(c, err, "invalid_request")
		return
	}

	res, err := h.ledger.Import(dbctx.New(ctx), raw, opts)
	span.SetAttributes(attribute.Int("import.imported", res.Imported), attribute.Bool("import.success", res.Success))
	if err != nil && !h.mirrorFailed(c, "import", err) {
		spanErr = err
		h.metrics.ObserveImport("error", mode, res.Imported)
		response.RespondError(c, http.StatusInternalServerError, "import_failed", err)
		return
	}
	if !res.Success {
		h.metrics.ObserveImport("invalid", mode, 0)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"result": res})
		return
	}
	h.metrics.ObserveImport("ok", mode, res.Imported)
	response.RespondOK(c, gin.H{"result": res})
}

// readImportBody takes either a raw JSON body or a multipart "file" upload.
// Errors carry their HTTP status.
func readImportBody(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	raw, err := readImportPayload(c)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return nil, apierr.Wrap(fmt.Errorf("import file exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge, "payload_too_large")
	case err != nil:
		return nil, apierr.Wrap(err, http.StatusBadRequest, "invalid_request")
	case len(bytes.TrimSpace(raw)) == 0:
		return nil, apierr.New(http.StatusBadRequest, "invalid_request", errors.New("empty body"))
	}
	return raw, nil
}

func readImportPayload(c *gin.Context) ([]byte, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return raw, nil
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file: %w", err)
	}
	if fh.Size > maxImportBytes {
		return nil, &http.MaxBytesError{Limit: maxImportBytes}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// DELETE /api/progress?topicId=
func (h *ProgressHandler) Clear(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	topicID := strings.TrimSpace(c.Query("topicId"))

	removed, err := h.ledger.ClearUserData(dbcOf(c), userID, topicID)
	if err != nil && !h.mirrorFailed(c, "clear", err) {
		response.RespondError(c, http.StatusInternalServerError, "clear_failed", err)
		return
	}
	scope := "all"
	if topicID != "" {
		scope = "topic"
	}
	h.metrics.IncClear(scope)
	response.RespondOK(c, gin.H{"removed": removed})
}
