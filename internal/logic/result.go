package logic

// OpResult 链上变更操作的结果
//
// Converged 为真表示目标状态已由并发者达成（链上回报"已完成"），
// 按幂等收敛设计同样视为成功，调用方无需区分"我做的"和"已被做过"。
type OpResult struct {
	JobId     string `json:"job_id"`
	Stage     int    `json:"stage,omitempty"`
	Signature string `json:"signature,omitempty"` // 收敛时为空
	Converged bool   `json:"converged"`
	// 链上变更已成功但镜像落库失败时为假；
	// 操作仍算成功，状态展示可能滞后，由后台任务重试对账
	MirrorSynced bool `json:"mirror_synced"`
}
