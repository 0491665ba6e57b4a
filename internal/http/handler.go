package http

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"audit-service/internal/config"
	"audit-service/internal/export"
	"audit-service/internal/repository"
	"audit-service/internal/service"
	"audit-service/internal/session"
)

// maxUploadBytes bounds the multipart video payload.
const maxUploadBytes = 512 << 20

type Handler struct {
	auditService *service.AuditService
	config       *config.Config
	log          zerolog.Logger
}

func NewHandler(
	auditService *service.AuditService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		auditService: auditService,
		config:       cfg,
		log:          log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/audits/video", h.processVideoAudit)
		public.POST("/audits/:id/save", h.saveVideoAudit)
		public.POST("/sessions/live", h.startLiveSession)
		public.GET("/sessions/live/:id", h.liveSessionStatus)
		public.GET("/sessions/live/:id/frame", h.liveSessionFrame)
		public.POST("/sessions/live/:id/save", h.saveLiveSession)
		public.POST("/sessions/live/:id/retry", h.retryLiveSession)
		public.GET("/reports", h.listReports)
		public.GET("/reports/stats", h.reportStats)
		public.GET("/camera/status", h.checkCameraStatus)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/reports/export", h.exportReports)
	}
}

func (h *Handler) processVideoAudit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	building := strings.TrimSpace(c.PostForm("building"))
	room := strings.TrimSpace(c.PostForm("room"))

	fileHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("video file is required"))
		return
	}

	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("audit-%s%s", uuid.NewString(), filepath.Ext(fileHeader.Filename)))
	if err := c.SaveUploadedFile(fileHeader, tmpPath); err != nil {
		h.log.Error().Err(err).Str("filename", fileHeader.Filename).Msg("failed to spool uploaded video")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}
	defer os.Remove(tmpPath)

	h.log.Info().
		Str("building", building).
		Str("room", room).
		Str("filename", fileHeader.Filename).
		Int64("size", fileHeader.Size).
		Msg("processing video audit")

	outcome, err := h.auditService.ProcessVideo(c.Request.Context(), building, room, fileHeader.Filename, tmpPath)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(outcome))
}

func (h *Handler) saveVideoAudit(c *gin.Context) {
	auditID, ok := h.pathID(c)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	// An empty body means the default description.
	_ = c.ShouldBindJSON(&req)

	report, err := h.auditService.SaveUpload(c.Request.Context(), auditID, strings.TrimSpace(req.Description))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(report))
}

func (h *Handler) startLiveSession(c *gin.Context) {
	var req struct {
		Building string `json:"building" binding:"required"`
		Room     string `json:"room"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	ls, err := h.auditService.StartLiveSession(c.Request.Context(), req.Building, req.Room)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": ls.ID,
		"building":   ls.Building,
		"room":       ls.Room,
		"phase":      ls.Phase(),
		"duration":   h.config.Audit.LiveDuration.Seconds(),
	})
}

func (h *Handler) liveSessionStatus(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	status, err := h.auditService.LiveStatus(id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(status))
}

func (h *Handler) liveSessionFrame(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	frame, err := h.auditService.LiveFrame(id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", frame)
}

func (h *Handler) saveLiveSession(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req struct {
		Room        string `json:"room"`
		Description string `json:"description"`
	}
	_ = c.ShouldBindJSON(&req)

	report, err := h.auditService.SaveLiveSession(c.Request.Context(), id, strings.TrimSpace(req.Room), strings.TrimSpace(req.Description))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(report))
}

func (h *Handler) retryLiveSession(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.auditService.RetryLiveSession(id); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listReports(c *gin.Context) {
	filter := repository.ListFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		Building: strings.TrimSpace(c.Query("building")),
	}

	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	reports, err := h.auditService.ListReports(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list reports")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, successResponse(reports))
}

func (h *Handler) reportStats(c *gin.Context) {
	stats, err := h.auditService.SummaryStats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to compute report stats")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, successResponse(stats))
}

func (h *Handler) exportReports(c *gin.Context) {
	filter := repository.ListFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		Building: strings.TrimSpace(c.Query("building")),
		Limit:    repository.MaxListLimit,
	}

	reports, err := h.auditService.ListReports(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load reports for export")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	filename := fmt.Sprintf("inspection-reports-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := export.WriteReportsXLSX(c.Writer, reports); err != nil {
		h.log.Error().Err(err).Msg("failed to write xlsx export")
	}
}

func (h *Handler) checkCameraStatus(c *gin.Context) {
	rtspURL := h.config.Camera.RTSPURL

	c.JSON(http.StatusOK, gin.H{
		"status": gin.H{
			"rtsp_url":   maskPassword(rtspURL),
			"configured": rtspURL != "",
			"fps":        h.config.Camera.FPS,
		},
	})
}

func (h *Handler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, session.ErrRoomMissing):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrSessionActive), errors.Is(err, session.ErrWrongPhase), errors.Is(err, session.ErrProcessing):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrSourceUnavailable):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

func maskPassword(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			authPart := parts[0]
			if strings.Contains(authPart, "://") {
				protocol := strings.Split(authPart, "://")[0]
				credentials := strings.Split(authPart, "://")[1]
				if strings.Contains(credentials, ":") {
					username := strings.Split(credentials, ":")[0]
					return protocol + "://" + username + ":****@" + parts[1]
				}
			}
		}
	}
	return url
}
