package task

import (
	"context"
	"time"

	"github.com/blues/fps/internal/config"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/logic"
	"github.com/go-co-op/gocron/v2"
)

// MirrorRetryJob 镜像重试任务
//
// 链上变更成功但镜像落库失败的任务会被标记 mirror_stale，
// 这里重新对账把镜像补齐；对账成功时标记由对账引擎清除。
type MirrorRetryJob struct {
	store      ledger.Store
	reconciler *logic.ReconcileLogic
	config     *config.Config
}

// NewMirrorRetryJob 创建镜像重试任务
func NewMirrorRetryJob(store ledger.Store, reconciler *logic.ReconcileLogic, cfg *config.Config) *MirrorRetryJob {
	return &MirrorRetryJob{
		store:      store,
		reconciler: reconciler,
		config:     cfg,
	}
}

// GetName 获取任务名称
func (j *MirrorRetryJob) GetName() string {
	return "mirror_retry"
}

// GetSchedule 获取调度配置
func (j *MirrorRetryJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.RetryInterval) * time.Second)
}

// Execute 执行任务
func (j *MirrorRetryJob) Execute() {
	ctx := context.Background()

	jobIds, err := j.store.StaleJobIds(ctx)
	if err != nil {
		logger.Error("Mirror retry failed to list stale jobs: %v", err)
		return
	}

	for _, jobId := range jobIds {
		if _, err := j.reconciler.Reconcile(ctx, jobId); err != nil {
			logger.Warn("Mirror retry reconcile failed for job %s: %v", jobId, err)
			continue
		}
		logger.Info("Mirror retry reconciled job %s", jobId)
	}
}
