package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"notebooker/core"
	"notebooker/models"
)

// parseAndValidateID 解析并验证字符串ID为uint
func parseAndValidateID(idStr string, paramName string) (uint, error) {
	if idStr == "" {
		return 0, fmt.Errorf("missing %s parameter", paramName)
	}

	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be a number", paramName)
	}

	return uint(id), nil
}

// estimateTokens 粗略估算 token 数（约 4 字符一个 token）
func estimateTokens(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += len(t)
	}
	return total / 4
}

// recordInteraction 异步记录一次 LLM 调用并广播活动事件
func recordInteraction(app *appContext, userID uint, username, section, prompt string, result *core.GenerateResult, elapsed time.Duration) {
	app.dbLogger.LogInteraction(&models.LLMInteraction{
		UserID:     userID,
		ModelName:  result.ModelName,
		Prompt:     prompt,
		Response:   result.Text,
		TokensUsed: estimateTokens(prompt, result.Text),
		Degraded:   result.Degraded,
		DurationMs: elapsed.Milliseconds(),
	})
	app.hub.Broadcast(core.ActivityEvent{
		Type:      "llm_generation",
		Username:  username,
		Section:   section,
		ModelName: result.ModelName,
		Degraded:  result.Degraded,
	})
}

// handleRoot 处理根路径请求
func handleRoot(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"name":    "Notebooker",
			"version": "2.0.0",
			"endpoints": gin.H{
				"auth":     "/api/auth",
				"sections": "/api/sections",
				"planning": "/api/planning",
				"health":   "/health",
			},
			"models":    app.dispatcher.Models(),
			"timestamp": time.Now().Unix(),
		})
	}
}

// handleHealth 处理健康检查
func handleHealth(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, models.HealthResponse{
			Status:    "healthy",
			Service:   "Notebooker",
			Models:    len(app.dispatcher.Models()),
			Timestamp: time.Now().Unix(),
		})
	}
}

// --- 章节管理 ---

// handleListSections 列出当前用户的全部章节
func handleListSections(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var sections []models.Section
		if err := app.db.Where("user_id = ?", userID).Order("updated_at desc").Find(&sections).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to query sections: "+err.Error()))
			return
		}

		c.JSON(200, models.NewSuccessResponse("OK", sections))
	}
}

// handleGetSection 按名称获取章节
func handleGetSection(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		name := c.Param("name")

		var section models.Section
		err := app.db.Where("user_id = ? AND name = ?", userID, name).First(&section).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(404, models.NewErrorResponse("Section not found: "+name))
			return
		}
		if err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to query section: "+err.Error()))
			return
		}

		c.JSON(200, models.NewSuccessResponse("OK", section))
	}
}

// handleSaveSection 创建或更新章节（按用户+名称幂等）
func handleSaveSection(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var req models.SectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		tagsJSON, err := json.Marshal(req.Tags)
		if err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid tags"))
			return
		}

		var section models.Section
		err = app.db.Where("user_id = ? AND name = ?", userID, req.Name).First(&section).Error
		created := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !created {
			c.JSON(500, models.NewErrorResponse("Failed to query section: "+err.Error()))
			return
		}

		section.UserID = userID
		section.Name = req.Name
		section.Title = req.Title
		section.Content = req.Content
		section.Tags = string(tagsJSON)

		if err := app.db.Save(&section).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to save section: "+err.Error()))
			return
		}

		status := 200
		if created {
			status = 201
		}
		c.JSON(status, models.NewSuccessResponse("Section saved", section))
	}
}

// handleDeleteSection 删除章节
func handleDeleteSection(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		name := c.Param("name")

		result := app.db.Where("user_id = ? AND name = ?", userID, name).Delete(&models.Section{})
		if result.Error != nil {
			c.JSON(500, models.NewErrorResponse("Failed to delete section: "+result.Error.Error()))
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(404, models.NewErrorResponse("Section not found: "+name))
			return
		}

		c.JSON(200, models.NewSuccessResponse("Section deleted", nil))
	}
}

// --- LLM 写作 ---

// handleDraftSection 起草章节并保存
func handleDraftSection(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		username := c.GetString("username")
		name := c.Param("name")

		var req models.DraftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		start := time.Now()
		result, err := app.writer.DraftSection(c.Request.Context(), name, req)
		if err != nil {
			if errors.Is(err, core.ErrInvalidRequest) {
				c.JSON(400, models.NewErrorResponse("Invalid generation request: "+err.Error()))
				return
			}
			c.JSON(500, models.NewErrorResponse("Draft failed: "+err.Error()))
			return
		}
		elapsed := time.Since(start)

		// 生成结果直接落到章节
		var section models.Section
		app.db.Where("user_id = ? AND name = ?", userID, name).First(&section)
		section.UserID = userID
		section.Name = name
		if section.Title == "" {
			section.Title = req.Title
		}
		section.Content = result.Text
		if err := app.db.Save(&section).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to save draft: "+err.Error()))
			return
		}

		recordInteraction(app, userID, username, name, "draft:"+name, result, elapsed)

		c.JSON(200, models.NewSuccessResponse("Draft created", gin.H{
			"section":    section,
			"model_name": result.ModelName,
			"degraded":   result.Degraded,
		}))
	}
}

// handleRewriteSection 重写章节内容
func handleRewriteSection(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		username := c.GetString("username")
		name := c.Param("name")

		var req models.RewriteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		var section models.Section
		err := app.db.Where("user_id = ? AND name = ?", userID, name).First(&section).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(404, models.NewErrorResponse("Section not found: "+name))
			return
		}
		if err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to query section: "+err.Error()))
			return
		}
		if section.Content == "" {
			c.JSON(400, models.NewErrorResponse("Section has no content to rewrite"))
			return
		}

		start := time.Now()
		result, err := app.writer.RewriteSection(c.Request.Context(), section.Content, req.Focus)
		if err != nil {
			if errors.Is(err, core.ErrInvalidRequest) {
				c.JSON(400, models.NewErrorResponse("Invalid generation request: "+err.Error()))
				return
			}
			c.JSON(500, models.NewErrorResponse("Rewrite failed: "+err.Error()))
			return
		}
		elapsed := time.Since(start)

		section.Content = result.Text
		if err := app.db.Save(&section).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to save rewrite: "+err.Error()))
			return
		}

		recordInteraction(app, userID, username, name, "rewrite:"+name, result, elapsed)

		c.JSON(200, models.NewSuccessResponse("Section rewritten", gin.H{
			"section":    section,
			"model_name": result.ModelName,
			"degraded":   result.Degraded,
		}))
	}
}

// handleAnalyze 对用户全部章节做差距分析并生成针对性问题
func handleAnalyze(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		username := c.GetString("username")

		var sections []models.Section
		if err := app.db.Where("user_id = ?", userID).Find(&sections).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to query sections: "+err.Error()))
			return
		}

		contents := make(map[string]string, len(sections))
		for _, s := range sections {
			contents[s.Name] = s.Content
		}

		ga := app.writer.AnalyzeGaps(contents)

		questions, degraded, err := app.writer.GenerateQuestions(c.Request.Context(), ga)
		if err != nil {
			c.JSON(500, models.NewErrorResponse("Question generation failed: "+err.Error()))
			return
		}

		app.hub.Broadcast(core.ActivityEvent{
			Type:     "gap_analysis",
			Username: username,
			Degraded: degraded,
		})

		c.JSON(200, models.NewSuccessResponse("Analysis complete", gin.H{
			"gap_analysis": ga,
			"questions":    questions,
			"degraded":     degraded,
		}))
	}
}

// handleAnalyzeContent 对任意内容做 LLM 深度分析
func handleAnalyzeContent(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		username := c.GetString("username")

		var req models.AnalyzeContentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		start := time.Now()
		analysis, err := app.writer.AnalyzeContent(c.Request.Context(), req.Content)
		if err != nil {
			if errors.Is(err, core.ErrInvalidRequest) {
				c.JSON(400, models.NewErrorResponse("Invalid generation request: "+err.Error()))
				return
			}
			c.JSON(500, models.NewErrorResponse("Analysis failed: "+err.Error()))
			return
		}
		elapsed := time.Since(start)

		recordInteraction(app, userID, username, "", "analyze_content", &core.GenerateResult{
			Text:      analysis.Analysis,
			ModelName: analysis.ModelName,
			Degraded:  analysis.Degraded,
		}, elapsed)

		c.JSON(200, models.NewSuccessResponse("Analysis complete", analysis))
	}
}

// --- 规划表 ---

// handleGetPlanning 获取规划表
func handleGetPlanning(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var sheets []models.PlanningSheet
		if err := app.db.Where("user_id = ?", userID).Order("updated_at desc").Find(&sheets).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to query planning sheets: "+err.Error()))
			return
		}

		c.JSON(200, models.NewSuccessResponse("OK", sheets))
	}
}

// handleUpdatePlanning 创建或更新规划表条目（按章节名幂等）
func handleUpdatePlanning(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var req models.PlanningUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		questionsJSON, _ := json.Marshal(req.Questions)
		decisionsJSON, _ := json.Marshal(req.Decisions)

		var sheet models.PlanningSheet
		err := app.db.Where("user_id = ? AND section_name = ?", userID, req.SectionName).First(&sheet).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(500, models.NewErrorResponse("Failed to query planning sheet: "+err.Error()))
			return
		}

		sheet.UserID = userID
		sheet.SectionName = req.SectionName
		if req.Status != "" {
			sheet.Status = req.Status
		}
		if req.Content != "" {
			sheet.Content = req.Content
		}
		if req.Questions != nil {
			sheet.Questions = string(questionsJSON)
		}
		if req.Decisions != nil {
			sheet.Decisions = string(decisionsJSON)
		}

		if err := app.db.Save(&sheet).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to save planning sheet: "+err.Error()))
			return
		}

		c.JSON(200, models.NewSuccessResponse("Planning sheet saved", sheet))
	}
}

// --- 项目管理 ---

// handleListProjects 列出项目
func handleListProjects(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var projects []models.Project
		if err := app.db.Where("user_id = ?", userID).Find(&projects).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to query projects: "+err.Error()))
			return
		}

		c.JSON(200, models.NewSuccessResponse("OK", projects))
	}
}

// handleCreateProject 创建项目
func handleCreateProject(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var req models.ProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		project := models.Project{
			UserID:      userID,
			Name:        req.Name,
			Description: req.Description,
		}
		if err := app.db.Create(&project).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to create project: "+err.Error()))
			return
		}

		c.JSON(201, models.NewSuccessResponse("Project created", project))
	}
}

// handleUpdateProject 更新项目
func handleUpdateProject(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		projectID, err := parseAndValidateID(c.Param("project_id"), "project_id")
		if err != nil {
			c.JSON(400, models.NewErrorResponse(err.Error()))
			return
		}

		var req models.ProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		var project models.Project
		if err := app.db.Where("id = ? AND user_id = ?", projectID, userID).First(&project).Error; err != nil {
			c.JSON(404, models.NewErrorResponse("Project not found"))
			return
		}

		project.Name = req.Name
		project.Description = req.Description
		if err := app.db.Save(&project).Error; err != nil {
			c.JSON(500, models.NewErrorResponse("Failed to update project: "+err.Error()))
			return
		}

		c.JSON(200, models.NewSuccessResponse("Project updated", project))
	}
}

// handleDeleteProject 删除项目（章节保留，解除关联）
func handleDeleteProject(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		projectID, err := parseAndValidateID(c.Param("project_id"), "project_id")
		if err != nil {
			c.JSON(400, models.NewErrorResponse(err.Error()))
			return
		}

		result := app.db.Where("id = ? AND user_id = ?", projectID, userID).Delete(&models.Project{})
		if result.Error != nil {
			c.JSON(500, models.NewErrorResponse("Failed to delete project: "+result.Error.Error()))
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(404, models.NewErrorResponse("Project not found"))
			return
		}

		app.db.Model(&models.Section{}).Where("project_id = ? AND user_id = ?", projectID, userID).Update("project_id", nil)

		c.JSON(200, models.NewSuccessResponse("Project deleted", nil))
	}
}

// --- 备份 / 模型 / 统计 ---

// handleBackup 备份当前用户数据
func handleBackup(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		path, err := app.backups.Create(userID)
		if err != nil {
			c.JSON(500, models.NewErrorResponse("Backup failed: "+err.Error()))
			return
		}

		c.JSON(200, models.NewSuccessResponse("Backup created", gin.H{"path": path}))
	}
}

// handleGetModels 模型列表与当前选择
func handleGetModels(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := app.dispatcher.CurrentModel()
		if current == "" {
			c.JSON(500, models.NewErrorResponse("No models configured"))
			return
		}

		c.JSON(200, models.NewSuccessResponse("OK", gin.H{
			"models":        app.dispatcher.Models(),
			"current_model": current,
		}))
	}
}

// handleSwitchModel 手动切换首选模型
func handleSwitchModel(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SwitchModelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		if err := app.dispatcher.SwitchModel(req.ModelIndex); err != nil {
			if errors.Is(err, core.ErrModelOutOfRange) {
				c.JSON(400, models.NewErrorResponse(fmt.Sprintf("Model index %d out of range", req.ModelIndex)))
				return
			}
			c.JSON(500, models.NewErrorResponse("Switch failed: "+err.Error()))
			return
		}

		current := app.dispatcher.CurrentModel()
		app.logger.Infof("🔄 模型已切换: %s", current)
		c.JSON(200, models.NewSuccessResponse("Model switched", gin.H{"current_model": current}))
	}
}

// handleStats 用户使用统计
func handleStats(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var stats models.UserStats
		app.db.Model(&models.Section{}).Where("user_id = ?", userID).Count(&stats.SectionsCount)
		app.db.Model(&models.PlanningSheet{}).Where("user_id = ?", userID).Count(&stats.PlanningCount)
		app.db.Model(&models.LLMInteraction{}).Where("user_id = ?", userID).Count(&stats.InteractionsCount)
		app.db.Model(&models.LLMInteraction{}).Where("user_id = ? AND degraded = ?", userID, true).Count(&stats.DegradedCount)

		var totalTokens *int64
		app.db.Model(&models.LLMInteraction{}).Where("user_id = ?", userID).Select("SUM(tokens_used)").Scan(&totalTokens)
		if totalTokens != nil {
			stats.TotalTokensUsed = *totalTokens
		}

		c.JSON(200, models.NewSuccessResponse("OK", stats))
	}
}

// handleDispatchStatus 调度器健康快照
func handleDispatchStatus(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, models.NewSuccessResponse("OK", app.dispatcher.Health().Snapshot()))
	}
}
