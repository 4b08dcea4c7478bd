package escrow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode 链上拒绝的分类
type ErrorCode string

const (
	CodeAlreadyApproved           ErrorCode = "already_approved"
	CodeAlreadyClaimed            ErrorCode = "already_claimed"
	CodeNotApproved               ErrorCode = "not_approved"
	CodeCannotCancelAfterApproval ErrorCode = "cannot_cancel_after_approval"
	CodeInsufficientFunds         ErrorCode = "insufficient_funds"
	CodeUnknown                   ErrorCode = "unknown"
)

// ChainError 托管合约拒绝执行指令
//
// 上层按 Code 分支，不做错误字符串匹配；
// 字符串到分类的映射只发生在这一层。
type ChainError struct {
	Code   ErrorCode
	Reason string
}

func (e *ChainError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("chain rejection: %s", e.Code)
	}
	return fmt.Sprintf("chain rejection: %s (%s)", e.Code, e.Reason)
}

// IsCode 判断错误是否为指定分类的链上拒绝
func IsCode(err error, code ErrorCode) bool {
	var ce *ChainError
	return errors.As(err, &ce) && ce.Code == code
}

// TransportError 指令未到达合约或结果未知（网络、超时、节点故障）
//
// 与 ChainError 区分：合约没有拒绝任何东西，读操作可以重试，
// 写操作必须先重新对账确认真实结果。
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chain transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport 判断错误是否为传输层失败
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// 合约回滚原因到分类的映射表，按出现顺序匹配
var revertPatterns = []struct {
	fragment string
	code     ErrorCode
}{
	{"already been approved", CodeAlreadyApproved},
	{"already approved", CodeAlreadyApproved},
	{"already been claimed", CodeAlreadyClaimed},
	{"already claimed", CodeAlreadyClaimed},
	{"not been approved", CodeNotApproved},
	{"not approved", CodeNotApproved},
	{"cannot cancel job after milestone approval", CodeCannotCancelAfterApproval},
	{"cancel after approval", CodeCannotCancelAfterApproval},
	{"insufficient balance", CodeInsufficientFunds},
	{"insufficient funds", CodeInsufficientFunds},
}

// Classify 将合约回滚原因翻译成类型化错误
func Classify(reason string) *ChainError {
	lowered := strings.ToLower(reason)
	for _, p := range revertPatterns {
		if strings.Contains(lowered, p.fragment) {
			return &ChainError{Code: p.code, Reason: reason}
		}
	}
	return &ChainError{Code: CodeUnknown, Reason: reason}
}
