package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/complyon/backend/internal/service"
)

type EvidenceHandler struct {
	service *service.DocumentService
}

func NewEvidenceHandler(svc *service.DocumentService) *EvidenceHandler {
	return &EvidenceHandler{service: svc}
}

// Upload 上传证据文件，question_id 可选
func (h *EvidenceHandler) Upload(c *gin.Context) {
	vendorID, err := strconv.ParseUint(c.PostForm("vendor_id"), 10, 32)
	if err != nil || vendorID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor_id"})
		return
	}

	var questionID *uint
	if qid := c.PostForm("question_id"); qid != "" {
		parsed, err := strconv.ParseUint(qid, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question_id"})
			return
		}
		id := uint(parsed)
		questionID = &id
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

	doc, err := h.service.Upload(c.Request.Context(), uint(vendorID), questionID,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), fileHeader.Size, file)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// Delete 删除证据文件
func (h *EvidenceHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), uint(id)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
}

// GetByQuestion 获取挂在问题上的证据文件
func (h *EvidenceHandler) GetByQuestion(c *gin.Context) {
	questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return
	}

	docs, err := h.service.GetByQuestion(uint(questionID))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, docs)
}

// Download 生成限时下载链接并重定向
func (h *EvidenceHandler) Download(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	url, err := h.service.DownloadURL(c.Request.Context(), uint(id), 15*time.Minute)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, url)
}
