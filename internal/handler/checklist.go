package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/complyon/backend/internal/service"
)

type ChecklistHandler struct {
	service *service.ChecklistService
}

// NewChecklistHandler 创建清单处理器
func NewChecklistHandler(svc *service.ChecklistService) *ChecklistHandler {
	return &ChecklistHandler{service: svc}
}

// Upload 上传清单文件并触发抽取
func (h *ChecklistHandler) Upload(c *gin.Context) {
	vendorID, err := strconv.ParseUint(c.PostForm("vendor_id"), 10, 32)
	if err != nil || vendorID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor_id"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	checklist, err := h.service.CreateFromUpload(c.Request.Context(), uint(vendorID), c.PostForm("name"), fileHeader.Filename, file)
	if err != nil {
		// 抽取失败时清单仍然创建成功（error 状态），一并返回便于前端展示
		if checklist != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "checklist": checklist})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, checklist)
}

// List 获取厂商的清单列表
func (h *ChecklistHandler) List(c *gin.Context) {
	vendorID, err := strconv.ParseUint(c.Query("vendor_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor_id"})
		return
	}

	checklists, err := h.service.List(uint(vendorID))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, checklists)
}

// Get 获取清单详情（含有序问题）
func (h *ChecklistHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	checklist, err := h.service.Get(uint(id))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, checklist)
}

// Delete 删除清单及其问题与证据文件
func (h *ChecklistHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), uint(id)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "checklist deleted"})
}

// AddQuestion 手工新增问题，body 不带 checklist_id 时进入手工分组
func (h *ChecklistHandler) AddQuestion(c *gin.Context) {
	var req struct {
		VendorID            uint   `json:"vendor_id" binding:"required"`
		ChecklistID         *uint  `json:"checklist_id"`
		Text                string `json:"text" binding:"required"`
		RequiresDocument    bool   `json:"requires_document"`
		DocumentDescription string `json:"document_description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.service.AddManualQuestion(req.VendorID, req.ChecklistID, req.Text, req.RequiresDocument, req.DocumentDescription)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

// Grouped 按清单分组返回厂商的全部问题，手工问题在合成分组里
func (h *ChecklistHandler) Grouped(c *gin.Context) {
	vendorID, err := strconv.ParseUint(c.Query("vendor_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor_id"})
		return
	}

	groups, err := h.service.GroupedByChecklist(uint(vendorID))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, groups)
}
