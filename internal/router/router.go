package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/complyon/backend/config"
	"github.com/complyon/backend/internal/handler"
)

func Setup(
	cfg *config.Config,
	checklistHandler *handler.ChecklistHandler,
	questionHandler *handler.QuestionHandler,
	evidenceHandler *handler.EvidenceHandler,
	generationHandler *handler.GenerationHandler,
	submissionHandler *handler.SubmissionHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	api := r.Group("/api")
	{
		checklists := api.Group("/checklists")
		{
			checklists.POST("/upload", checklistHandler.Upload)
			checklists.GET("", checklistHandler.List)
			checklists.GET("/grouped", checklistHandler.Grouped)
			checklists.GET("/:id", checklistHandler.Get)
			checklists.DELETE("/:id", checklistHandler.Delete)
			checklists.GET("/:id/completion", submissionHandler.Completion)
			checklists.POST("/:id/submit", submissionHandler.SubmitChecklist)
			checklists.POST("/:id/generate-batch", generationHandler.GenerateBatch) // 兼容入口，body 里的 checklist_id 优先
		}

		questions := api.Group("/questions")
		{
			questions.POST("", checklistHandler.AddQuestion)
			questions.GET("/:id", questionHandler.Get)
			questions.POST("/:id/edit", questionHandler.ToggleEdit)
			questions.PUT("/:id/answer", questionHandler.SaveAnswer)
			questions.POST("/:id/done", questionHandler.MarkDone)
			questions.POST("/:id/generate", generationHandler.Generate)
			questions.POST("/:id/regenerate", generationHandler.Regenerate)
			questions.POST("/:id/generate-async", generationHandler.GenerateAsync)
			questions.POST("/:id/submit", submissionHandler.SubmitQuestion)
			questions.GET("/:id/documents", evidenceHandler.GetByQuestion)
		}

		documents := api.Group("/documents")
		{
			documents.POST("/upload", evidenceHandler.Upload)
			documents.DELETE("/:id", evidenceHandler.Delete)
			documents.GET("/:id/download", evidenceHandler.Download)
			documents.POST("/:id/submit", submissionHandler.SubmitDocument)
		}

		generation := api.Group("/generation")
		{
			generation.POST("/batch", generationHandler.GenerateBatch)
			generation.GET("/status", generationHandler.QueueStatus)
		}

		submissions := api.Group("/submissions")
		{
			submissions.GET("", submissionHandler.List)
			submissions.GET("/:id/lineage", submissionHandler.Lineage)
		}
	}

	return r
}
