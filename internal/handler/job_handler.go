package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/fps/internal/logic"
	"github.com/blues/fps/internal/model"
	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	jobLogic          *logic.JobLogic
	milestoneLogic    *logic.MilestoneLogic
	reconcileLogic    *logic.ReconcileLogic
	cancellationLogic *logic.CancellationLogic
}

func NewJobHandler(jobLogic *logic.JobLogic, milestoneLogic *logic.MilestoneLogic, reconcileLogic *logic.ReconcileLogic, cancellationLogic *logic.CancellationLogic) *JobHandler {
	return &JobHandler{
		jobLogic:          jobLogic,
		milestoneLogic:    milestoneLogic,
		reconcileLogic:    reconcileLogic,
		cancellationLogic: cancellationLogic,
	}
}

// CreateJob 创建任务
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	job := &model.JobModel{
		Title:           req.Title,
		Description:     req.Description,
		RecruiterWallet: req.RecruiterWallet,
	}
	created, err := h.jobLogic.CreateJob(c.Request.Context(), job, req.MilestoneAmounts)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "任务创建成功", created)
}

// GetJobs 获取任务列表
func (h *JobHandler) GetJobs(c *gin.Context) {
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	jobs, total, err := h.jobLogic.ListJobs(c.Request.Context(), status, page, pageSize)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "", gin.H{
		"jobs":      jobs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetJob 获取任务详情
func (h *JobHandler) GetJob(c *gin.Context) {
	job, milestones, err := h.jobLogic.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "", gin.H{
		"job":        job,
		"milestones": h.milestoneLogic.DescribeMilestones(milestones),
	})
}

// AssignFreelancer 选定自由职业者
func (h *JobHandler) AssignFreelancer(c *gin.Context) {
	var req AssignFreelancerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.jobLogic.AssignFreelancer(c.Request.Context(), c.Param("id"), callerWallet(c), req.FreelancerWallet); err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "已选定自由职业者", nil)
}

// FundJob 质押托管资金
func (h *JobHandler) FundJob(c *gin.Context) {
	result, err := h.jobLogic.Fund(c.Request.Context(), c.Param("id"), callerWallet(c))
	if err != nil {
		FailWith(c, err)
		return
	}

	message := "质押成功"
	if !result.MirrorSynced {
		message = "质押成功，状态展示可能稍有延迟"
	}
	SuccessResponse(c, http.StatusOK, message, result)
}

// ReconcileJob 手动触发对账
func (h *JobHandler) ReconcileJob(c *gin.Context) {
	view, err := h.reconcileLogic.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "对账完成", view)
}

// EvaluateCancellation 评估任务是否可直接取消
func (h *JobHandler) EvaluateCancellation(c *gin.Context) {
	decision, view, err := h.cancellationLogic.EvaluateCancellation(c.Request.Context(), c.Param("id"))
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "", gin.H{
		"decision": decision,
		"view":     view,
	})
}

// CancelJob 取消任务或创建回收工单
func (h *JobHandler) CancelJob(c *gin.Context) {
	result, err := h.cancellationLogic.Cancel(c.Request.Context(), c.Param("id"), callerWallet(c))
	if err != nil {
		FailWith(c, err)
		return
	}

	message := "任务已取消，托管资金全额退回"
	if result.Decision == logic.DecisionReclaimOnly {
		message = "已有里程碑被批准，不能直接取消，已创建人工回收工单"
	}
	SuccessResponse(c, http.StatusOK, message, result)
}

// GetTransactions 获取任务的交易记录
func (h *JobHandler) GetTransactions(c *gin.Context) {
	records, err := h.jobLogic.GetTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "", gin.H{"transactions": records})
}
