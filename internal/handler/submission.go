package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/service"
)

type SubmissionHandler struct {
	service *service.SubmissionService
}

func NewSubmissionHandler(svc *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{service: svc}
}

// decisionRequest 跟进决定，提交前必须显式给出
type decisionRequest struct {
	IsFollowUp         bool   `json:"is_follow_up"`
	Type               string `json:"type"`
	Reason             string `json:"reason"`
	ParentSubmissionID *uint  `json:"parent_submission_id"`
}

func (r *decisionRequest) toDomain() *domain.FollowUpDecision {
	if r == nil {
		return nil
	}
	return &domain.FollowUpDecision{
		IsFollowUp:         r.IsFollowUp,
		Type:               domain.FollowUpType(r.Type),
		Reason:             r.Reason,
		ParentSubmissionID: r.ParentSubmissionID,
	}
}

// SubmitChecklist 整单提交
func (h *SubmissionHandler) SubmitChecklist(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid checklist id"})
		return
	}

	var req struct {
		Decision *decisionRequest `json:"decision"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.SubmitChecklist(c.Request.Context(), uint(id), req.Decision.toDomain())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// SubmitQuestion 单问题提交
func (h *SubmissionHandler) SubmitQuestion(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return
	}

	var req struct {
		Decision *decisionRequest `json:"decision"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.SubmitQuestion(c.Request.Context(), uint(id), req.Decision.toDomain())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// SubmitDocument 单文件提交
func (h *SubmissionHandler) SubmitDocument(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	var req struct {
		Decision *decisionRequest `json:"decision"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.SubmitDocument(c.Request.Context(), uint(id), req.Decision.toDomain())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// Completion 清单完成度结论
func (h *SubmissionHandler) Completion(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid checklist id"})
		return
	}

	verdict, err := h.service.EvaluateChecklist(uint(id))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, verdict)
}

// List 厂商的提交记录列表
func (h *SubmissionHandler) List(c *gin.Context) {
	vendorID, err := strconv.ParseUint(c.Query("vendor_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor_id"})
		return
	}

	records, err := h.service.ListByVendor(uint(vendorID))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// Lineage 提交记录的跟进链
func (h *SubmissionHandler) Lineage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	records, err := h.service.Lineage(uint(id))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}
