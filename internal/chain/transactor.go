// Package chain 以 go-ethereum 实现 fund.Asset / fund.YieldVenue：ERC20 代币与 Aave v3 Pool。
// 写操作先 eth_call 模拟拿到返回值（transfer 的 bool、withdraw 的实际数量），再签名发送并等待回执。
package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var chainLog = logrus.WithField("component", "chain")

var (
	ErrReverted    = errors.New("chain: transaction reverted")
	ErrCallFailed  = errors.New("chain: call returned false")
	ErrWaitTimeout = errors.New("chain: timed out waiting for receipt")
)

// DefaultDerivationPath 以太坊默认 HD 路径
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// 估算失败时的兜底 gas
const fallbackGasLimit = 300000

// Client ethclient.Client 中用到的部分
type Client interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

var _ Client = (*ethclient.Client)(nil)

// Dial 连接 RPC 并读取 chainID
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, *big.Int, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "连接RPC节点失败")
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, nil, errors.Wrap(err, "获取chainID失败")
	}
	return c, id, nil
}

// Signer 基金账户私钥
type Signer struct {
	key  *ecdsa.PrivateKey
	from common.Address
}

// NewSigner 从十六进制私钥创建（可带 0x 前缀）
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return &Signer{key: key, from: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// SignerFromMnemonic 从助记词按 HD 路径派生
func SignerFromMnemonic(mnemonic, derivationPath string) (*Signer, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, errors.New("mnemonic is required")
	}
	if strings.TrimSpace(derivationPath) == "" {
		derivationPath = DefaultDerivationPath
	}
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mnemonic")
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, errors.Wrap(err, "invalid derivation path")
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "derive failed")
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, errors.Wrap(err, "private key failed")
	}
	return &Signer{key: key, from: acct.Address}, nil
}

// Address 签名账户地址
func (s *Signer) Address() common.Address { return s.from }

// Transactor 用同一个签名账户发送交易
type Transactor struct {
	client  Client
	signer  *Signer
	chainID *big.Int

	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// NewTransactor 创建发送器
func NewTransactor(client Client, signer *Signer, chainID *big.Int) *Transactor {
	return &Transactor{
		client:       client,
		signer:       signer,
		chainID:      new(big.Int).Set(chainID),
		PollInterval: 2 * time.Second,
		WaitTimeout:  2 * time.Minute,
	}
}

// From 发送方地址
func (t *Transactor) From() common.Address { return t.signer.from }

// call 以发送方身份 eth_call
func (t *Transactor) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return t.client.CallContract(ctx, ethereum.CallMsg{From: t.signer.from, To: &to, Data: data}, nil)
}

// send 签名、发送并等待回执；回执 status=0 返回 ErrReverted
func (t *Transactor) send(ctx context.Context, to common.Address, data []byte) (*ethtypes.Receipt, error) {
	tx, err := t.buildSignedTx(ctx, to, data, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	if err := t.client.SendTransaction(ctx, tx); err != nil {
		return nil, errors.Wrap(err, "发送交易失败")
	}
	chainLog.WithField("tx", tx.Hash().Hex()).Debugf("交易已发送 to=%s", to.Hex())
	rc, err := t.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if rc.Status != ethtypes.ReceiptStatusSuccessful {
		return rc, errors.Wrapf(ErrReverted, "tx %s", tx.Hash().Hex())
	}
	return rc, nil
}

func (t *Transactor) buildSignedTx(ctx context.Context, to common.Address, data []byte, value *big.Int) (*ethtypes.Transaction, error) {
	from := t.signer.from
	nonce, err := t.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, errors.Wrap(err, "获取nonce失败")
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "获取gas价格失败")
	}
	gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		gasLimit = fallbackGasLimit
	}
	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(t.chainID), t.signer.key)
	if err != nil {
		return nil, errors.Wrap(err, "签名交易失败")
	}
	return signed, nil
}

func (t *Transactor) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.WaitTimeout)
	defer cancel()
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()
	for {
		rc, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil && rc != nil {
			return rc, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrap(err, "查询回执失败")
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrWaitTimeout, "tx %s", hash.Hex())
		case <-ticker.C:
		}
	}
}
