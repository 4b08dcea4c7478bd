package handler

import (
	"errors"
	"net/http"

	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logic"
	"github.com/gin-gonic/gin"
)

// Response 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// FailWith 按错误分类映射HTTP状态码
func FailWith(c *gin.Context, err error) {
	var gv *logic.GuardViolation
	if errors.As(err, &gv) {
		switch gv.Kind {
		case logic.GuardNotRecruiter, logic.GuardNotFreelancer:
			ErrorResponse(c, http.StatusForbidden, gv.Message)
		case logic.GuardNoSuchStage:
			ErrorResponse(c, http.StatusNotFound, gv.Message)
		default:
			ErrorResponse(c, http.StatusConflict, gv.Message)
		}
		return
	}

	var sv *logic.StateViolation
	if errors.As(err, &sv) {
		ErrorResponse(c, http.StatusConflict, sv.Error())
		return
	}

	// 漂移是阻塞性警告，不静默解决
	if logic.IsDrift(err) {
		ErrorResponse(c, http.StatusConflict, "链下记录与链上状态存在冲突，已上报人工处理: "+err.Error())
		return
	}

	if logic.IsStaleView(err) {
		ErrorResponse(c, http.StatusConflict, "链上状态在操作期间发生变化，请刷新后重试")
		return
	}

	var raced *logic.CancelRacedError
	if errors.As(err, &raced) {
		ErrorResponse(c, http.StatusConflict, "取消期间出现新的批准，请重新评估是否可取消")
		return
	}

	if logic.IsTransient(err) || escrow.IsTransport(err) {
		ErrorResponse(c, http.StatusServiceUnavailable, "链上服务暂时不可用，请稍后重试")
		return
	}

	// 合约级拒绝原样透出
	var ce *escrow.ChainError
	if errors.As(err, &ce) {
		ErrorResponse(c, http.StatusUnprocessableEntity, ce.Error())
		return
	}

	if errors.Is(err, ledger.ErrNotFound) {
		ErrorResponse(c, http.StatusNotFound, "记录不存在")
		return
	}

	ErrorResponse(c, http.StatusInternalServerError, err.Error())
}

// callerWallet 取经身份层验证后的调用方钱包
//
// 认证在上游网关完成，这里只消费其结果；核心不管理私钥。
func callerWallet(c *gin.Context) string {
	return c.GetHeader("X-Wallet-Address")
}
