package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/complyon/backend/internal/service"
	"github.com/complyon/backend/internal/service/orchestrator"
)

type GenerationHandler struct {
	service *service.GenerationService
}

func NewGenerationHandler(svc *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{service: svc}
}

// Generate 同步生成单个问题的答案
func (h *GenerationHandler) Generate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	question, err := h.service.GenerateAnswer(c.Request.Context(), uint(id))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// Regenerate 重新生成，允许超越在途调用
func (h *GenerationHandler) Regenerate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	question, err := h.service.Regenerate(c.Request.Context(), uint(id))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// GenerateAsync 将生成任务交给编排器后台执行
func (h *GenerationHandler) GenerateAsync(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	orch := orchestrator.GetGlobalOrchestrator()
	if orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orchestrator not available"})
		return
	}

	if err := orch.EnqueueJob(orchestrator.NewGenerationJob(uint(id))); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "generation enqueued", "question_id": id})
}

// GenerateBatch 批量生成：清单内或厂商全部 pending 问题作为一个任务
// 同步等待轮询结束，预算用尽返回软超时结果
func (h *GenerationHandler) GenerateBatch(c *gin.Context) {
	var req struct {
		VendorID    uint  `json:"vendor_id" binding:"required"`
		ChecklistID *uint `json:"checklist_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.GenerateBatch(c.Request.Context(), service.BatchScope{
		VendorID:    req.VendorID,
		ChecklistID: req.ChecklistID,
	}, func(p service.BatchProgress) {
		klog.V(6).Infof("批量生成进度: completed=%d/%d, next=%q", p.Completed, p.Total, p.NextPendingText)
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// QueueStatus 编排器队列状态
func (h *GenerationHandler) QueueStatus(c *gin.Context) {
	orch := orchestrator.GetGlobalOrchestrator()
	if orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orchestrator not available"})
		return
	}
	c.JSON(http.StatusOK, orch.GetQueueStatus())
}
