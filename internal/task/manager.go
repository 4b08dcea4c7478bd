package task

import (
	"github.com/blues/fps/internal/config"
	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/logic"
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// Manager 任务管理器
type Manager struct {
	scheduler  gocron.Scheduler
	store      ledger.Store
	reconciler *logic.ReconcileLogic
	config     *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(db *gorm.DB, chain escrow.Client, cfg *config.Config) *Manager {
	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	store := ledger.NewDatabase(db)
	return &Manager{
		scheduler:  s,
		store:      store,
		reconciler: logic.NewReconcileLogic(store, chain),
		config:     cfg,
	}
}

// Start 启动任务管理器
func Start(db *gorm.DB, chain escrow.Client, cfg *config.Config) *Manager {
	manager := NewManager(db, chain, cfg)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	m.register(NewDriftSweepJob(m.store, m.reconciler, m.config))
	m.register(NewMirrorRetryJob(m.store, m.reconciler, m.config))
}

// Job 后台任务接口
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

func (m *Manager) register(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
