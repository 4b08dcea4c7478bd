package escrow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/blues/fps/internal/config"
	"github.com/blues/fps/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// 托管合约ABI定义（简化版）
const contractABI = `[
	{
		"name": "getEscrow",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "jobId", "type": "string"}],
		"outputs": [
			{"name": "recruiter", "type": "address"},
			{"name": "freelancer", "type": "address"},
			{"name": "stakedBalance", "type": "uint256"},
			{"name": "amounts", "type": "uint256[]"},
			{"name": "approved", "type": "bool[]"},
			{"name": "claimed", "type": "bool[]"}
		]
	},
	{
		"name": "createJobEscrow",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "jobId", "type": "string"},
			{"name": "freelancer", "type": "address"},
			{"name": "amounts", "type": "uint256[]"}
		],
		"outputs": []
	},
	{
		"name": "approveMilestone",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "jobId", "type": "string"},
			{"name": "milestoneIndex", "type": "uint8"},
			{"name": "recruiter", "type": "address"}
		],
		"outputs": []
	},
	{
		"name": "claimMilestone",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "jobId", "type": "string"},
			{"name": "milestoneIndex", "type": "uint8"},
			{"name": "freelancer", "type": "address"}
		],
		"outputs": []
	},
	{
		"name": "cancelJob",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "jobId", "type": "string"},
			{"name": "recruiter", "type": "address"}
		],
		"outputs": []
	}
]`

// EthereumClient 基于 ethclient 的托管合约客户端
//
// 服务作为中继方持有操作私钥，代已验证的钱包提交指令，
// 指令参数中携带实际行为方地址。
type EthereumClient struct {
	client       *ethclient.Client
	privateKey   *ecdsa.PrivateKey
	contractAddr common.Address
	parsedABI    abi.ABI
	chainId      *big.Int
	timeout      time.Duration
}

func Init(cfg config.ChainConfig) (*EthereumClient, error) {
	// 连接链节点
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain node: %w", err)
	}

	// 解析私钥
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	// 解析ABI
	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &EthereumClient{
		client:       client,
		privateKey:   privateKey,
		contractAddr: common.HexToAddress(cfg.ContractAddress),
		parsedABI:    parsedABI,
		chainId:      big.NewInt(cfg.ChainId),
		timeout:      timeout,
	}, nil
}

// ReadAccount 读取任务的托管账户状态
func (c *EthereumClient) ReadAccount(ctx context.Context, jobId string) (*AccountView, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.parsedABI.Pack("getEscrow", jobId)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getEscrow call: %w", err)
	}

	output, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, c.translateError(err)
	}

	values, err := c.parsedABI.Unpack("getEscrow", output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getEscrow result: %w", err)
	}
	if len(values) != 6 {
		return nil, fmt.Errorf("unexpected getEscrow result arity: %d", len(values))
	}

	recruiter := values[0].(common.Address)
	freelancer := values[1].(common.Address)
	staked := values[2].(*big.Int)
	amounts := values[3].([]*big.Int)
	approved := values[4].([]bool)
	claimed := values[5].([]bool)

	if len(amounts) != len(approved) || len(amounts) != len(claimed) {
		return nil, fmt.Errorf("inconsistent escrow arrays for job %s", jobId)
	}

	view := &AccountView{
		JobId:            jobId,
		StakedBalance:    staked.Int64(),
		RecruiterWallet:  recruiter.Hex(),
		FreelancerWallet: freelancer.Hex(),
		Milestones:       make([]MilestoneView, len(amounts)),
	}
	for i := range amounts {
		view.Milestones[i] = MilestoneView{
			Amount:   amounts[i].Int64(),
			Approved: approved[i],
			Claimed:  claimed[i],
		}
	}

	return view, nil
}

// SubmitFund 创建托管账户并锁定全部里程碑金额
func (c *EthereumClient) SubmitFund(ctx context.Context, jobId string, freelancer string, amounts []int64) (string, error) {
	bigAmounts := make([]*big.Int, len(amounts))
	total := big.NewInt(0)
	for i, a := range amounts {
		bigAmounts[i] = big.NewInt(a)
		total.Add(total, bigAmounts[i])
	}

	data, err := c.parsedABI.Pack("createJobEscrow", jobId, common.HexToAddress(freelancer), bigAmounts)
	if err != nil {
		return "", fmt.Errorf("failed to pack createJobEscrow: %w", err)
	}

	return c.submit(ctx, data, total)
}

// SubmitApprove 批准指定阶段的里程碑
func (c *EthereumClient) SubmitApprove(ctx context.Context, jobId string, stage int, signer string) (string, error) {
	data, err := c.parsedABI.Pack("approveMilestone", jobId, uint8(stage-1), common.HexToAddress(signer))
	if err != nil {
		return "", fmt.Errorf("failed to pack approveMilestone: %w", err)
	}
	return c.submit(ctx, data, big.NewInt(0))
}

// SubmitClaim 领取指定阶段的里程碑付款
func (c *EthereumClient) SubmitClaim(ctx context.Context, jobId string, stage int, signer string) (string, error) {
	data, err := c.parsedABI.Pack("claimMilestone", jobId, uint8(stage-1), common.HexToAddress(signer))
	if err != nil {
		return "", fmt.Errorf("failed to pack claimMilestone: %w", err)
	}
	return c.submit(ctx, data, big.NewInt(0))
}

// SubmitCancel 取消任务并全额退款给雇主
func (c *EthereumClient) SubmitCancel(ctx context.Context, jobId string, signer string) (string, error) {
	data, err := c.parsedABI.Pack("cancelJob", jobId, common.HexToAddress(signer))
	if err != nil {
		return "", fmt.Errorf("failed to pack cancelJob: %w", err)
	}
	return c.submit(ctx, data, big.NewInt(0))
}

// EscrowAddress 托管合约地址
func (c *EthereumClient) EscrowAddress() string {
	return c.contractAddr.Hex()
}

// submit 构造、签名并发送交易，等待上链确认
func (c *EthereumClient) submit(ctx context.Context, data []byte, value *big.Int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	from := crypto.PubkeyToAddress(c.privateKey.PublicKey)

	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", &TransportError{Op: "fetch nonce", Err: err}
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", &TransportError{Op: "fetch gas price", Err: err}
	}

	// 估算gas的同时完成预执行，合约拒绝在这里以回滚原因暴露
	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.contractAddr,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", c.translateError(err)
	}

	tx := types.NewTransaction(nonce, c.contractAddr, value, gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainId), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", c.translateError(err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, signedTx)
	if err != nil {
		// 超时或网络中断：结果未知，调用方必须重新对账后才能汇报结论
		return "", &TransportError{Op: "await confirmation",
			Err: fmt.Errorf("transaction %s not confirmed: %w", signedTx.Hash().Hex(), err)}
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := c.replayForRevertReason(ctx, from, value, data, receipt.BlockNumber)
		logger.Warn("Transaction %s reverted: %s", signedTx.Hash().Hex(), reason)
		return "", Classify(reason)
	}

	return signedTx.Hash().Hex(), nil
}

// replayForRevertReason 在失败交易所在区块重放调用以提取回滚原因
func (c *EthereumClient) replayForRevertReason(ctx context.Context, from common.Address, value *big.Int, data []byte, blockNumber *big.Int) string {
	_, err := c.client.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.contractAddr,
		Value: value,
		Data:  data,
	}, blockNumber)
	if err == nil {
		return "transaction reverted without reason"
	}
	return err.Error()
}

// translateError 区分合约回滚与传输层错误
func (c *EthereumClient) translateError(err error) error {
	if strings.Contains(err.Error(), "execution reverted") {
		return Classify(err.Error())
	}
	return &TransportError{Op: "chain call", Err: err}
}
