package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/repository"
	"github.com/complyon/backend/internal/service"
	"github.com/complyon/backend/internal/service/statemachine"
)

// writeError 将领域错误映射为 HTTP 状态码
// 未完成清单返回 409 并附带结构化计数，前端据此渲染缺失明细
func writeError(c *gin.Context, err error) {
	var validationErr *domain.ValidationFailure
	var incompleteErr *domain.IncompleteChecklistFailure
	var transitionErr *statemachine.InvalidStateTransitionError
	var extractionErr *domain.ExtractionFailure
	var generationErr *domain.GenerationFailure
	var networkErr *domain.NetworkFailure

	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &incompleteErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":                incompleteErr.Error(),
			"checklist_id":         incompleteErr.ChecklistID,
			"unanswered_questions": incompleteErr.UnansweredQuestions,
			"missing_documents":    incompleteErr.MissingDocuments,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": transitionErr.Error()})
	case errors.Is(err, service.ErrGenerationInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &extractionErr), errors.As(err, &generationErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.As(err, &networkErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": networkErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
