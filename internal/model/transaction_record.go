package model

import (
	"time"
)

// TransactionRecordModel 交易记录模型
//
// 仅追加的审计日志：确认后的记录不再修改。
type TransactionRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	JobId       string `json:"job_id" gorm:"index;size:50;not null"`
	MilestoneId int64  `json:"milestone_id" gorm:"index"` // 任务级交易（质押/退款）为0

	// 转账信息
	FromWallet string `json:"from_wallet"`
	ToWallet   string `json:"to_wallet"`
	Amount     int64  `json:"amount"`

	// 类型与状态
	Type   TxnType   `json:"type" gorm:"not null"`
	Status TxnStatus `json:"status" gorm:"default:'pending'"`

	// 链上签名
	Signature string `json:"signature" gorm:"index;size:128"`

	// 对账引擎补录的记录（链上已领取但镜像缺失对应交易时生成）
	Synthetic bool `json:"synthetic" gorm:"default:false"`
}

// TxnType 交易类型
type TxnType string

const (
	TxnTypeStake    TxnType = "stake"    // 质押
	TxnTypePayment  TxnType = "payment"  // 里程碑付款
	TxnTypeRefund   TxnType = "refund"   // 退款
	TxnTypeApproval TxnType = "approval" // 批准标记，不发生资金移动
)

// TxnStatus 交易状态
type TxnStatus string

const (
	TxnStatusPending   TxnStatus = "pending"   // 待确认
	TxnStatusConfirmed TxnStatus = "confirmed" // 已确认
	TxnStatusFailed    TxnStatus = "failed"    // 失败
)

// TableName 自定义表名
func (TransactionRecordModel) TableName() string {
	return "transaction_record"
}
