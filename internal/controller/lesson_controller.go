package controller

import (
	"academy_backend/internal/lesson"
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LessonSessions 由 service.LessonSessionService 实现
type LessonSessions interface {
	Open(ctx context.Context, userID, moduleSlug, lessonSlug string) (*service.SessionView, error)
	Apply(ctx context.Context, userID, lessonID string, ev lesson.Event) (*service.EventResult, error)
	Blur(ctx context.Context, userID, lessonID string) (service.SaveStatus, error)
	SaveStatus(userID, lessonID string) service.SaveStatus
	Rewrite(ctx context.Context, userID, lessonID, field, bearer string) (*service.RewriteResult, error)
	AttachImage(ctx context.Context, userID, lessonID, targetID, filename, contentType string, data []byte) (*service.AttachResult, error)
	Continue(ctx context.Context, userID, lessonID string) (service.NavTarget, error)
}

type LessonController struct {
	sessions       LessonSessions
	previews       service.PreviewCache
	maxUploadBytes int64
}

func NewLessonController(sessions LessonSessions, previews service.PreviewCache, maxUploadMB int) *LessonController {
	if maxUploadMB <= 0 {
		maxUploadMB = util.MaxUploadMBDefault
	}
	return &LessonController{
		sessions:       sessions,
		previews:       previews,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

type RewriteRequest struct {
	Field string `json:"field" binding:"required"`
}

// writeError 把领域错误映射为 HTTP 状态码
func writeError(ctx *gin.Context, err error) {
	var gwErr *service.GatewayError
	switch {
	case errors.Is(err, util.ErrLessonNotFound), errors.Is(err, util.ErrModuleNotFound), errors.Is(err, util.ErrPreviewNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrSessionNotFound):
		util.Error(ctx, http.StatusGone, err.Error())
	case errors.Is(err, util.ErrCannotAdvance), errors.Is(err, util.ErrRewriteInFlight):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, lesson.ErrRewriteNotAllowed),
		errors.Is(err, lesson.ErrUnknownEvent),
		errors.Is(err, lesson.ErrUnknownField),
		errors.Is(err, lesson.ErrUnknownTarget),
		errors.Is(err, lesson.ErrStateMismatch),
		errors.Is(err, util.ErrInvalidUpload):
		util.BadRequest(ctx, err.Error())
	case errors.As(err, &gwErr):
		util.Error(ctx, http.StatusBadGateway, gwErr.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// OpenLesson godoc
// @Summary 打开课节
// @Description 解析课节组件并恢复上次的作答
// @Tags 课节
// @Produce json
// @Security ApiKeyAuth
// @Param module path string true "模块 slug"
// @Param lesson path string true "课节 slug"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Failure 404 {object} util.Response
// @Router /api/modules/{module}/lessons/{lesson} [get]
func (c *LessonController) OpenLesson(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.sessions.Open(ctx.Request.Context(), user.UserID, ctx.Param("module"), ctx.Param("lesson"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// ApplyEvent godoc
// @Summary 提交组件事件
// @Tags 课节
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课节ID"
// @Param body body lesson.Event true "组件事件"
// @Success 200 {object} util.Response{data=service.EventResult}
// @Router /api/lessons/{id}/events [post]
func (c *LessonController) ApplyEvent(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var ev lesson.Event
	if err := ctx.ShouldBindJSON(&ev); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.sessions.Apply(ctx.Request.Context(), user.UserID, ctx.Param("id"), ev)
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// Blur godoc
// @Summary 输入框失焦，立即保存
// @Tags 课节
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课节ID"
// @Success 200 {object} util.Response{data=service.SaveStatus}
// @Router /api/lessons/{id}/blur [post]
func (c *LessonController) Blur(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	status, err := c.sessions.Blur(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// SaveStatus godoc
// @Summary 查询保存状态
// @Tags 课节
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课节ID"
// @Success 200 {object} util.Response{data=service.SaveStatus}
// @Router /api/lessons/{id}/save-status [get]
func (c *LessonController) SaveStatus(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	util.Success(ctx, c.sessions.SaveStatus(user.UserID, ctx.Param("id")))
}

// Rewrite godoc
// @Summary AI 改写字段
// @Description 改写失败时原文不变，返回 502 并带回当前会话
// @Tags 课节
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课节ID"
// @Param body body RewriteRequest true "字段"
// @Success 200 {object} util.Response{data=service.RewriteResult}
// @Failure 502 {object} util.Response{data=service.RewriteResult}
// @Router /api/lessons/{id}/rewrite [post]
func (c *LessonController) Rewrite(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req RewriteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.sessions.Rewrite(ctx.Request.Context(), user.UserID, ctx.Param("id"), req.Field, util.BearerToken(ctx))
	var gwErr *service.GatewayError
	if errors.As(err, &gwErr) && res != nil {
		util.ErrorWithData(ctx, http.StatusBadGateway, gwErr.Error(), res)
		return
	}
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// UploadPersonaImage godoc
// @Summary 上传人物画像图片
// @Description 上传失败时返回临时预览句柄，durable 为 false
// @Tags 课节
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课节ID"
// @Param persona path string true "人物ID"
// @Param file formData file true "图片"
// @Success 200 {object} util.Response{data=service.AttachResult}
// @Router /api/lessons/{id}/personas/{persona}/image [post]
func (c *LessonController) UploadPersonaImage(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	if file.Size > c.maxUploadBytes {
		util.Error(ctx, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, c.maxUploadBytes+1))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if int64(len(data)) > c.maxUploadBytes {
		util.Error(ctx, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	mimeType, err := util.ValidateMimeType(bytes.NewReader(data), []string{util.MimeImage})
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.sessions.AttachImage(ctx.Request.Context(), user.UserID, ctx.Param("id"), ctx.Param("persona"), file.Filename, mimeType, data)
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// Continue godoc
// @Summary 完成课节并获取下一步
// @Tags 课节
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课节ID"
// @Success 200 {object} util.Response{data=service.NavTarget}
// @Failure 409 {object} util.Response
// @Router /api/lessons/{id}/continue [post]
func (c *LessonController) Continue(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	next, err := c.sessions.Continue(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, next)
}

// Preview godoc
// @Summary 获取临时预览图片
// @Tags 课节
// @Produce octet-stream
// @Security ApiKeyAuth
// @Param handle path string true "预览句柄"
// @Success 200 {file} binary
// @Router /api/previews/{handle} [get]
func (c *LessonController) Preview(ctx *gin.Context) {
	data, contentType, err := c.previews.Get(ctx.Request.Context(), ctx.Param("handle"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "private, max-age=60")
	ctx.Data(http.StatusOK, contentType, data)
}
