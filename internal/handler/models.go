package handler

// 请求模型

// CreateJobRequest 创建任务请求
type CreateJobRequest struct {
	Title            string  `json:"title" binding:"required"`
	Description      string  `json:"description"`
	RecruiterWallet  string  `json:"recruiter_wallet" binding:"required"`
	MilestoneAmounts []int64 `json:"milestone_amounts" binding:"required,min=1"`
}

// AssignFreelancerRequest 选定自由职业者请求
type AssignFreelancerRequest struct {
	FreelancerWallet string `json:"freelancer_wallet" binding:"required"`
}

// SubmitMilestoneRequest 提交工作成果请求
type SubmitMilestoneRequest struct {
	Description string `json:"description" binding:"required"`
	Links       string `json:"links"`
	Files       string `json:"files"`
}

// ApproveMilestoneRequest 批准里程碑请求
type ApproveMilestoneRequest struct {
	Comments string `json:"comments"`
}

// RevisionRequest 要求返工请求
type RevisionRequest struct {
	Comments string `json:"comments" binding:"required"`
}
