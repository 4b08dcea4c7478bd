package logic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/model"
	"github.com/blues/fps/internal/support"
)

// memStore 内存账本，实现 ledger.Store
type memStore struct {
	mu         sync.Mutex
	jobs       map[string]*model.JobModel
	milestones map[string][]*model.MilestoneModel
	txns       []*model.TransactionRecordModel
	inquiries  []*model.ReclaimInquiryModel
	nextId     int64

	failMilestoneUpdate bool // 模拟镜像写入失败
}

func newMemStore() *memStore {
	return &memStore{
		jobs:       make(map[string]*model.JobModel),
		milestones: make(map[string][]*model.MilestoneModel),
	}
}

func (s *memStore) id() int64 {
	s.nextId++
	return s.nextId
}

func (s *memStore) CreateJob(ctx context.Context, job *model.JobModel, milestones []*model.MilestoneModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Id = s.id()
	s.jobs[job.JobId] = job
	for _, m := range milestones {
		m.Id = s.id()
		m.JobId = job.JobId
		s.milestones[job.JobId] = append(s.milestones[job.JobId], m)
	}
	return nil
}

func (s *memStore) GetJob(ctx context.Context, jobId string) (*model.JobModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobId]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memStore) ListJobs(ctx context.Context, status string, page, pageSize int) ([]model.JobModel, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []model.JobModel
	for _, job := range s.jobs {
		if status == "" || string(job.Status) == status {
			jobs = append(jobs, *job)
		}
	}
	return jobs, int64(len(jobs)), nil
}

func (s *memStore) UpdateJob(ctx context.Context, jobId string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobId]
	if !ok {
		return ledger.ErrNotFound
	}
	for key, value := range updates {
		switch key {
		case "status":
			job.Status = value.(model.JobStatus)
		case "mirror_stale":
			job.MirrorStale = value.(bool)
		case "freelancer_wallet":
			job.FreelancerWallet = value.(string)
		case "fund_tx_signature":
			job.FundTxSignature = value.(string)
		}
	}
	return nil
}

func (s *memStore) JobIdsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, job := range s.jobs {
		for _, status := range statuses {
			if job.Status == status {
				ids = append(ids, job.JobId)
			}
		}
	}
	return ids, nil
}

func (s *memStore) StaleJobIds(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, job := range s.jobs {
		if job.MirrorStale {
			ids = append(ids, job.JobId)
		}
	}
	return ids, nil
}

func (s *memStore) CreateMilestone(ctx context.Context, milestone *model.MilestoneModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	milestone.Id = s.id()
	s.milestones[milestone.JobId] = append(s.milestones[milestone.JobId], milestone)
	return nil
}

func (s *memStore) GetMilestones(ctx context.Context, jobId string) ([]model.MilestoneModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.MilestoneModel
	for _, m := range s.milestones[jobId] {
		result = append(result, *m)
	}
	return result, nil
}

func (s *memStore) GetMilestone(ctx context.Context, jobId string, stage int) (*model.MilestoneModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.milestones[jobId] {
		if m.Stage == stage {
			copied := *m
			return &copied, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (s *memStore) UpdateMilestone(ctx context.Context, jobId string, stage int, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMilestoneUpdate {
		return fmt.Errorf("simulated mirror write failure")
	}
	for _, m := range s.milestones[jobId] {
		if m.Stage != stage {
			continue
		}
		for key, value := range updates {
			switch key {
			case "status":
				m.Status = value.(model.MilestoneStatus)
			case "payment_released":
				m.PaymentReleased = value.(bool)
			case "reviewer_comments":
				m.ReviewerComments = value.(string)
			case "submission_description":
				m.SubmissionDescription = value.(string)
			case "submission_links":
				m.SubmissionLinks = value.(string)
			case "submission_files":
				m.SubmissionFiles = value.(string)
			case "submitted_at":
				m.SubmittedAt = value.(*time.Time)
			case "reviewed_at":
				m.ReviewedAt = value.(*time.Time)
			}
		}
		return nil
	}
	return ledger.ErrNotFound
}

func (s *memStore) AppendTransaction(ctx context.Context, record *model.TransactionRecordModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Id = s.id()
	s.txns = append(s.txns, record)
	return nil
}

func (s *memStore) HasTransaction(ctx context.Context, jobId string, milestoneId int64, txnType model.TxnType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.JobId == jobId && t.MilestoneId == milestoneId && t.Type == txnType {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetTransactions(ctx context.Context, jobId string) ([]model.TransactionRecordModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.TransactionRecordModel
	for _, t := range s.txns {
		if t.JobId == jobId {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (s *memStore) CreateReclaimInquiry(ctx context.Context, inquiry *model.ReclaimInquiryModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inquiry.Id = s.id()
	s.inquiries = append(s.inquiries, inquiry)
	return nil
}

// dropMilestone 删除镜像里的一条里程碑记录，模拟任务创建时的部分写入
func (s *memStore) dropMilestone(jobId string, stage int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.milestones[jobId][:0]
	for _, m := range s.milestones[jobId] {
		if m.Stage != stage {
			kept = append(kept, m)
		}
	}
	s.milestones[jobId] = kept
}

func (s *memStore) txnsOfType(txnType model.TxnType) []*model.TransactionRecordModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.TransactionRecordModel
	for _, t := range s.txns {
		if t.Type == txnType {
			result = append(result, t)
		}
	}
	return result
}

// fakeChain 内存托管合约，实现 escrow.Client，带调用计数
//
// 语义复刻真实合约：重复批准/领取被拒绝，领取要求已批准，
// 任一批准后禁止取消。
type fakeChain struct {
	mu    sync.Mutex
	state *escrow.AccountView

	// 设置后 ReadAccount 返回该冻结快照而非实时状态，
	// 用来模拟读与写之间被并发者抢先的竞态
	frozenView *escrow.AccountView

	// 设置后 ReadAccount 直接失败，模拟 RPC 故障
	readErr error

	reads, funds, approves, claims, cancels int
	sigSeq                                  int
}

func newFakeChain(jobId, recruiter, freelancer string, amounts []int64, staked int64) *fakeChain {
	milestones := make([]escrow.MilestoneView, len(amounts))
	for i, a := range amounts {
		milestones[i] = escrow.MilestoneView{Amount: a}
	}
	return &fakeChain{
		state: &escrow.AccountView{
			JobId:            jobId,
			StakedBalance:    staked,
			RecruiterWallet:  recruiter,
			FreelancerWallet: freelancer,
			Milestones:       milestones,
		},
	}
}

func copyView(v *escrow.AccountView) *escrow.AccountView {
	copied := *v
	copied.Milestones = append([]escrow.MilestoneView(nil), v.Milestones...)
	return &copied
}

func (f *fakeChain) ReadAccount(ctx context.Context, jobId string) (*escrow.AccountView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.frozenView != nil {
		return copyView(f.frozenView), nil
	}
	return copyView(f.state), nil
}

func (f *fakeChain) SubmitFund(ctx context.Context, jobId string, freelancer string, amounts []int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funds++
	var total int64
	milestones := make([]escrow.MilestoneView, len(amounts))
	for i, a := range amounts {
		milestones[i] = escrow.MilestoneView{Amount: a}
		total += a
	}
	f.state.FreelancerWallet = freelancer
	f.state.StakedBalance = total
	f.state.Milestones = milestones
	return f.sig("fund"), nil
}

func (f *fakeChain) SubmitApprove(ctx context.Context, jobId string, stage int, signer string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approves++
	if !strings.EqualFold(signer, f.state.RecruiterWallet) {
		return "", &escrow.ChainError{Code: escrow.CodeUnknown, Reason: "unauthorized signer"}
	}
	if f.state.Milestones[stage-1].Approved {
		return "", &escrow.ChainError{Code: escrow.CodeAlreadyApproved, Reason: "milestone has already been approved"}
	}
	f.state.Milestones[stage-1].Approved = true
	return f.sig("approve"), nil
}

func (f *fakeChain) SubmitClaim(ctx context.Context, jobId string, stage int, signer string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	m := &f.state.Milestones[stage-1]
	if !m.Approved {
		return "", &escrow.ChainError{Code: escrow.CodeNotApproved, Reason: "milestone has not been approved yet"}
	}
	if m.Claimed {
		return "", &escrow.ChainError{Code: escrow.CodeAlreadyClaimed, Reason: "milestone has already been claimed"}
	}
	m.Claimed = true
	f.state.StakedBalance -= m.Amount
	return f.sig("claim"), nil
}

func (f *fakeChain) SubmitCancel(ctx context.Context, jobId string, signer string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	for _, m := range f.state.Milestones {
		if m.Approved {
			return "", &escrow.ChainError{Code: escrow.CodeCannotCancelAfterApproval, Reason: "cannot cancel job after milestone approval"}
		}
	}
	f.state.StakedBalance = 0
	return f.sig("cancel"), nil
}

func (f *fakeChain) EscrowAddress() string {
	return "0xEscrowContract"
}

func (f *fakeChain) sig(op string) string {
	f.sigSeq++
	return fmt.Sprintf("sig-%s-%d", op, f.sigSeq)
}

// recordingSink 记录收到的申诉，可配置投递失败
type recordingSink struct {
	mu        sync.Mutex
	inquiries []*support.Inquiry
	failNext  bool
}

func (s *recordingSink) Submit(ctx context.Context, inquiry *support.Inquiry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return fmt.Errorf("simulated sink failure")
	}
	s.inquiries = append(s.inquiries, inquiry)
	return nil
}

// 测试环境装配

const (
	testJobId      = "job-1"
	testRecruiter  = "0xRecruiter"
	testFreelancer = "0xFreelancer"
)

type testEnv struct {
	store *memStore
	chain *fakeChain

	reconciler   *ReconcileLogic
	approval     *ApprovalLogic
	claim        *ClaimLogic
	cancellation *CancellationLogic
	sink         *recordingSink
}

// newTestEnv 构造一个已质押进行中的任务：镜像与链上初始一致
func newTestEnv(amounts []int64) *testEnv {
	store := newMemStore()
	var total int64
	milestones := make([]*model.MilestoneModel, len(amounts))
	for i, a := range amounts {
		total += a
		milestones[i] = &model.MilestoneModel{
			Stage:  i + 1,
			Amount: a,
			Status: model.MilestoneStatusSubmitted, // 已提交待审，可直接批准
		}
	}
	job := &model.JobModel{
		JobId:            testJobId,
		Title:            "test job",
		TotalAmount:      total,
		Status:           model.JobStatusActive,
		RecruiterWallet:  testRecruiter,
		FreelancerWallet: testFreelancer,
	}
	store.CreateJob(context.Background(), job, milestones)

	chain := newFakeChain(testJobId, testRecruiter, testFreelancer, amounts, total)
	reconciler := NewReconcileLogic(store, chain)
	sink := &recordingSink{}

	return &testEnv{
		store:        store,
		chain:        chain,
		reconciler:   reconciler,
		approval:     NewApprovalLogic(store, chain, reconciler),
		claim:        NewClaimLogic(store, chain, reconciler),
		cancellation: NewCancellationLogic(store, chain, reconciler, sink),
		sink:         sink,
	}
}
