package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logic"
	"github.com/blues/fps/internal/model"
)

func failStatus(t *testing.T, err error) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	FailWith(c, err)
	return w.Code
}

func TestFailWith_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"身份守卫", &logic.GuardViolation{Kind: logic.GuardNotRecruiter}, http.StatusForbidden},
		{"阶段不存在", &logic.GuardViolation{Kind: logic.GuardNoSuchStage}, http.StatusNotFound},
		{"前置条件冲突", &logic.GuardViolation{Kind: logic.GuardOutOfSequence}, http.StatusConflict},
		{"非法状态迁移", &logic.StateViolation{
			From: model.MilestoneStatusPending, To: model.MilestoneStatusApproved}, http.StatusConflict},
		{"漂移", &logic.DriftError{JobId: "j"}, http.StatusConflict},
		{"过期视图", &logic.StaleViewError{JobId: "j", Stage: 1}, http.StatusConflict},
		{"取消竞态", &logic.CancelRacedError{JobId: "j"}, http.StatusConflict},
		{"对账读取失败", &logic.TransientError{Op: "escrow read", Err: assert.AnError}, http.StatusServiceUnavailable},
		{"链上传输失败", &escrow.TransportError{Op: "await confirmation", Err: assert.AnError}, http.StatusServiceUnavailable},
		{"包装后的传输失败", fmt.Errorf("submit: %w",
			&escrow.TransportError{Op: "fetch nonce", Err: assert.AnError}), http.StatusServiceUnavailable},
		{"合约拒绝", &escrow.ChainError{Code: escrow.CodeInsufficientFunds, Reason: "insufficient balance"},
			http.StatusUnprocessableEntity},
		{"记录不存在", ledger.ErrNotFound, http.StatusNotFound},
		{"未分类", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, failStatus(t, tt.err))
		})
	}
}
