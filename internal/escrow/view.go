package escrow

// MilestoneView 单个里程碑的链上标志
type MilestoneView struct {
	Amount   int64 `json:"amount"`
	Approved bool  `json:"approved"`
	Claimed  bool  `json:"claimed"`
}

// AccountView 托管账户的链上只读投影
//
// 这是权威状态：每次变更决策前都必须重新读取，
// 镜像（数据库）只是它的派生缓存。
type AccountView struct {
	JobId            string          `json:"job_id"`
	StakedBalance    int64           `json:"staked_balance"`
	RecruiterWallet  string          `json:"recruiter_wallet"`
	FreelancerWallet string          `json:"freelancer_wallet"`
	Milestones       []MilestoneView `json:"milestones"`
}

// Milestone 按阶段号（从1开始）取里程碑
func (v *AccountView) Milestone(stage int) (MilestoneView, bool) {
	if stage < 1 || stage > len(v.Milestones) {
		return MilestoneView{}, false
	}
	return v.Milestones[stage-1], true
}

// PriorApproved 阶段号之前的所有里程碑是否都已批准
func (v *AccountView) PriorApproved(stage int) bool {
	for i := 0; i < stage-1 && i < len(v.Milestones); i++ {
		if !v.Milestones[i].Approved {
			return false
		}
	}
	return true
}

// AnyApproved 是否存在已批准的里程碑
func (v *AccountView) AnyApproved() bool {
	for _, m := range v.Milestones {
		if m.Approved {
			return true
		}
	}
	return false
}

// AllClaimed 是否所有里程碑都已领取
func (v *AccountView) AllClaimed() bool {
	for _, m := range v.Milestones {
		if !m.Claimed {
			return false
		}
	}
	return len(v.Milestones) > 0
}

// ClaimedTotal 已领取金额合计
func (v *AccountView) ClaimedTotal() int64 {
	var total int64
	for _, m := range v.Milestones {
		if m.Claimed {
			total += m.Amount
		}
	}
	return total
}
