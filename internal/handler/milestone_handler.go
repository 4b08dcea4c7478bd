package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/fps/internal/logic"
	"github.com/gin-gonic/gin"
)

type MilestoneHandler struct {
	milestoneLogic *logic.MilestoneLogic
	approvalLogic  *logic.ApprovalLogic
	claimLogic     *logic.ClaimLogic
}

func NewMilestoneHandler(milestoneLogic *logic.MilestoneLogic, approvalLogic *logic.ApprovalLogic, claimLogic *logic.ClaimLogic) *MilestoneHandler {
	return &MilestoneHandler{
		milestoneLogic: milestoneLogic,
		approvalLogic:  approvalLogic,
		claimLogic:     claimLogic,
	}
}

// StartMilestone 开始某阶段的工作
func (h *MilestoneHandler) StartMilestone(c *gin.Context) {
	jobId, stage, ok := h.params(c)
	if !ok {
		return
	}

	if err := h.milestoneLogic.Start(c.Request.Context(), jobId, stage, callerWallet(c)); err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "里程碑已开始", nil)
}

// SubmitMilestone 提交工作成果
func (h *MilestoneHandler) SubmitMilestone(c *gin.Context) {
	jobId, stage, ok := h.params(c)
	if !ok {
		return
	}

	var req SubmitMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	err := h.milestoneLogic.Submit(c.Request.Context(), jobId, stage, callerWallet(c), logic.Submission{
		Description: req.Description,
		Links:       req.Links,
		Files:       req.Files,
	})
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "工作成果已提交", nil)
}

// RequestRevision 要求返工
func (h *MilestoneHandler) RequestRevision(c *gin.Context) {
	jobId, stage, ok := h.params(c)
	if !ok {
		return
	}

	var req RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.milestoneLogic.RequestRevision(c.Request.Context(), jobId, stage, callerWallet(c), req.Comments); err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "已要求返工", nil)
}

// ApproveMilestone 批准里程碑
func (h *MilestoneHandler) ApproveMilestone(c *gin.Context) {
	jobId, stage, ok := h.params(c)
	if !ok {
		return
	}

	var req ApproveMilestoneRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.approvalLogic.Approve(c.Request.Context(), jobId, stage, callerWallet(c), req.Comments)
	if err != nil {
		FailWith(c, err)
		return
	}

	// 收敛与亲自批准对调用方同样是成功
	message := "里程碑已批准"
	if !result.MirrorSynced {
		message = "里程碑已批准，状态展示可能稍有延迟"
	}
	SuccessResponse(c, http.StatusOK, message, result)
}

// ClaimMilestone 领取里程碑付款
func (h *MilestoneHandler) ClaimMilestone(c *gin.Context) {
	jobId, stage, ok := h.params(c)
	if !ok {
		return
	}

	result, err := h.claimLogic.Claim(c.Request.Context(), jobId, stage, callerWallet(c))
	if err != nil {
		FailWith(c, err)
		return
	}

	message := "付款已领取"
	if !result.MirrorSynced {
		message = "付款已领取，状态展示可能稍有延迟"
	}
	SuccessResponse(c, http.StatusOK, message, result)
}

func (h *MilestoneHandler) params(c *gin.Context) (string, int, bool) {
	jobId := c.Param("id")
	stage, err := strconv.Atoi(c.Param("stage"))
	if err != nil || stage < 1 {
		ErrorResponse(c, http.StatusBadRequest, "无效的阶段号")
		return "", 0, false
	}
	return jobId, stage, true
}
