package logic

import (
	"errors"
	"fmt"

	"github.com/blues/fps/internal/model"
)

// GuardKind 前置条件违反的种类
type GuardKind string

const (
	GuardAlreadyApproved GuardKind = "already_approved"
	GuardAlreadyClaimed  GuardKind = "already_claimed"
	GuardOutOfSequence   GuardKind = "out_of_sequence"
	GuardNotApproved     GuardKind = "not_approved"
	GuardNotRecruiter    GuardKind = "not_recruiter"
	GuardNotFreelancer   GuardKind = "not_freelancer"
	GuardNotFunded       GuardKind = "not_funded"
	GuardNoSuchStage     GuardKind = "no_such_stage"
)

// GuardViolation 前置条件针对新鲜链上状态检查失败
//
// 不自动重试，调用方需要先改变前置状态（例如先批准前一阶段）。
type GuardViolation struct {
	Kind    GuardKind
	JobId   string
	Stage   int
	Message string
}

func (e *GuardViolation) Error() string {
	return fmt.Sprintf("guard violation [%s] job=%s stage=%d: %s", e.Kind, e.JobId, e.Stage, e.Message)
}

// IsGuard 判断错误是否为指定种类的前置条件违反
func IsGuard(err error, kind GuardKind) bool {
	var gv *GuardViolation
	return errors.As(err, &gv) && gv.Kind == kind
}

// StateViolation 非法的里程碑状态迁移
//
// 状态机从不静默忽略非法迁移。
type StateViolation struct {
	From model.MilestoneStatus
	To   model.MilestoneStatus
}

func (e *StateViolation) Error() string {
	return fmt.Sprintf("illegal milestone transition: %s -> %s", e.From, e.To)
}

// DriftStage 单个阶段的漂移快照
type DriftStage struct {
	Stage           int                   `json:"stage"`
	MirrorStatus    model.MilestoneStatus `json:"mirror_status"`
	PaymentReleased bool                  `json:"payment_released"`
	ChainApproved   bool                  `json:"chain_approved"`
	ChainClaimed    bool                  `json:"chain_claimed"`
}

// DriftError 镜像声称了比链上更强的支付状态
//
// 永远不向下自愈：正常运行不会出现这种方向的分歧，
// 出现即意味着程序缺陷或读到了非规范分叉，必须人工介入。
type DriftError struct {
	JobId  string
	Stages []DriftStage
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("drift detected: mirror stronger than chain for job %s (%d stages)", e.JobId, len(e.Stages))
}

// IsDrift 判断错误是否为漂移
func IsDrift(err error) bool {
	var de *DriftError
	return errors.As(err, &de)
}

// TransientError 网络或超时类失败
//
// 读操作可以安全重试；写操作必须先重新检查前置条件，
// 避免重复提交。
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient 判断错误是否为瞬时失败
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StaleViewError 提交与读取之间链上状态发生了对账本应发现的变化
//
// 不自动重试，提示调用方重新拉取状态；同时记录日志供漂移排查。
type StaleViewError struct {
	JobId  string
	Stage  int
	Reason string
}

func (e *StaleViewError) Error() string {
	return fmt.Sprintf("stale view for job %s stage %d: %s, re-fetch state and retry", e.JobId, e.Stage, e.Reason)
}

// IsStaleView 判断错误是否为过期视图
func IsStaleView(err error) bool {
	var se *StaleViewError
	return errors.As(err, &se)
}

// CancelRacedError 取消决策后链上才出现批准（读写竞态）
//
// 不重试取消，调用方应重新执行取消评估。
type CancelRacedError struct {
	JobId string
}

func (e *CancelRacedError) Error() string {
	return fmt.Sprintf("cancellation raced by approval for job %s, re-run evaluation", e.JobId)
}
