package main

import (
	"context"
	"flag"
	"log"
	"time"

	"k8s.io/klog/v2"

	"github.com/complyon/backend/config"
	"github.com/complyon/backend/internal/eventbus"
	"github.com/complyon/backend/internal/handler"
	"github.com/complyon/backend/internal/pkg/aiclient"
	"github.com/complyon/backend/internal/pkg/database"
	"github.com/complyon/backend/internal/pkg/extractor"
	"github.com/complyon/backend/internal/pkg/portal"
	"github.com/complyon/backend/internal/pkg/storage"
	"github.com/complyon/backend/internal/repository"
	"github.com/complyon/backend/internal/router"
	"github.com/complyon/backend/internal/service"
	"github.com/complyon/backend/internal/service/orchestrator"
	"github.com/complyon/backend/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化对象存储
	store, err := storage.NewMinIO(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	// 初始化 Repository
	checklistRepo := repository.NewChecklistRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	// 初始化事件总线
	questionBus := eventbus.NewQuestionEventBus()
	evidenceBus := eventbus.NewEvidenceEventBus()

	// 初始化外部服务客户端
	aiClient, err := aiclient.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize AI client: %v", err)
	}
	extractorClient := extractor.NewClient(cfg)
	portalClient := portal.NewClient(cfg)

	// 初始化 Service
	checklistService := service.NewChecklistService(cfg, checklistRepo, questionRepo, docRepo, extractorClient, store)
	questionService := service.NewQuestionService(questionRepo, questionBus)
	documentService := service.NewDocumentService(docRepo, questionRepo, store, evidenceBus)
	generationService := service.NewGenerationService(cfg, questionRepo, checklistRepo, docRepo, aiClient, questionBus)
	submissionService := service.NewSubmissionService(checklistRepo, questionRepo, docRepo, submissionRepo, portalClient)

	// 注册就绪度订阅器：答案写回或证据变动后重算清单完成度
	readiness := subscriber.NewReadinessSubscriber(checklistRepo, questionRepo, docRepo)
	readiness.RegisterQuestionBus(questionBus)
	readiness.RegisterEvidenceBus(evidenceBus)

	// 初始化全局生成编排器
	// maxWorkers 默认 2，避免并发过多打爆 LLM 配额
	executor := &generationExecutorAdapter{generationService: generationService}
	if err := orchestrator.InitGlobalOrchestrator(cfg.Generation.MaxWorkers, executor); err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}
	defer orchestrator.ShutdownGlobalOrchestrator()

	// 启动时回收卡住的问题（超过 10 分钟停留在 in-progress）
	resetStuckQuestions(questionRepo)

	// 初始化 Handler
	checklistHandler := handler.NewChecklistHandler(checklistService)
	questionHandler := handler.NewQuestionHandler(questionService)
	evidenceHandler := handler.NewEvidenceHandler(documentService)
	generationHandler := handler.NewGenerationHandler(generationService)
	submissionHandler := handler.NewSubmissionHandler(submissionService)

	// 设置路由
	r := router.Setup(cfg, checklistHandler, questionHandler, evidenceHandler, generationHandler, submissionHandler)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// resetStuckQuestions 进程崩溃会留下永远 in-progress 的问题，启动时回退为 pending
func resetStuckQuestions(questionRepo repository.QuestionRepository) {
	timeout := 10 * time.Minute

	affected, err := questionRepo.ResetStuckInProgress(timeout)
	if err != nil {
		klog.V(6).Infof("回收卡住问题失败: %v", err)
		return
	}

	if affected > 0 {
		klog.V(6).Infof("启动时回收了 %d 个卡住的问题", affected)
	}
}

// generationExecutorAdapter 把 GenerationService 适配为编排器的执行器
type generationExecutorAdapter struct {
	generationService *service.GenerationService
}

func (a *generationExecutorAdapter) ExecuteGeneration(ctx context.Context, questionID uint) error {
	_, err := a.generationService.GenerateAnswer(ctx, questionID)
	return err
}
