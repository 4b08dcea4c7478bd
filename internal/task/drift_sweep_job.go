package task

import (
	"context"
	"sync"
	"time"

	"github.com/blues/fps/internal/config"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/logic"
	"github.com/blues/fps/internal/model"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
)

// DriftSweepJob 漂移扫描任务
//
// 周期性对所有进行中的任务做一次对账，在用户无操作期间
// 也能发现链上领取与镜像的分歧并修正。
type DriftSweepJob struct {
	store      ledger.Store
	reconciler *logic.ReconcileLogic
	config     *config.Config
}

// NewDriftSweepJob 创建漂移扫描任务
func NewDriftSweepJob(store ledger.Store, reconciler *logic.ReconcileLogic, cfg *config.Config) *DriftSweepJob {
	return &DriftSweepJob{
		store:      store,
		reconciler: reconciler,
		config:     cfg,
	}
}

// GetName 获取任务名称
func (j *DriftSweepJob) GetName() string {
	return "drift_sweep"
}

// GetSchedule 获取调度配置
func (j *DriftSweepJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.SweepInterval) * time.Second)
}

// Execute 执行任务
func (j *DriftSweepJob) Execute() {
	ctx := context.Background()

	jobIds, err := j.store.JobIdsByStatus(ctx, model.JobStatusActive)
	if err != nil {
		logger.Error("Drift sweep failed to list active jobs: %v", err)
		return
	}
	if len(jobIds) == 0 {
		return
	}

	workers := j.config.Task.Workers
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		logger.Error("Drift sweep failed to create worker pool: %v", err)
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	var mu sync.Mutex
	driftCount := 0

	for _, jobId := range jobIds {
		jobId := jobId
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if _, err := j.reconciler.Reconcile(ctx, jobId); err != nil {
				if logic.IsDrift(err) {
					// 漂移不自动修正，记录并计数，等人工处理
					logger.Error("Drift sweep found conflict for job %s: %v", jobId, err)
					mu.Lock()
					driftCount++
					mu.Unlock()
					return
				}
				logger.Warn("Drift sweep reconcile failed for job %s: %v", jobId, err)
			}
		}); err != nil {
			wg.Done()
			logger.Error("Drift sweep failed to submit job %s: %v", jobId, err)
		}
	}
	wg.Wait()

	logger.Info("Drift sweep completed: %d jobs checked, %d with drift", len(jobIds), driftCount)
}
