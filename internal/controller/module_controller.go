package controller

import (
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"context"

	"github.com/gin-gonic/gin"
)

type ModuleOverviews interface {
	Overview(ctx context.Context, userID, moduleSlug string) (*service.ModuleOverview, error)
}

type ModuleController struct {
	overviews ModuleOverviews
}

func NewModuleController(overviews ModuleOverviews) *ModuleController {
	return &ModuleController{overviews: overviews}
}

// GetModule godoc
// @Summary 模块概览与章节进度
// @Tags 模块
// @Produce json
// @Security ApiKeyAuth
// @Param module path string true "模块 slug"
// @Success 200 {object} util.Response{data=service.ModuleOverview}
// @Failure 404 {object} util.Response
// @Router /api/modules/{module} [get]
func (c *ModuleController) GetModule(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	overview, err := c.overviews.Overview(ctx.Request.Context(), user.UserID, ctx.Param("module"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, overview)
}
