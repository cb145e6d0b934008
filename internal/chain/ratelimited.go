package chain

import (
	"context"
	"math/big"

	"github.com/betbot/sharefund/pkg/ratelimit"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// rateLimitedClient 每次 RPC 前先取令牌（公共 RPC 节点通常按 QPS 限流）
type rateLimitedClient struct {
	inner   Client
	limiter ratelimit.RateLimiter
}

// WithRateLimit 给 Client 加上速率限制；limiter 为 nil 时原样返回
func WithRateLimit(c Client, limiter ratelimit.RateLimiter) Client {
	if limiter == nil {
		return c
	}
	return &rateLimitedClient{inner: c, limiter: limiter}
}

func (c *rateLimitedClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.CallContract(ctx, msg, blockNumber)
}

func (c *rateLimitedClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.inner.PendingNonceAt(ctx, account)
}

func (c *rateLimitedClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.SuggestGasPrice(ctx)
}

func (c *rateLimitedClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.inner.EstimateGas(ctx, msg)
}

func (c *rateLimitedClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.inner.SendTransaction(ctx, tx)
}

func (c *rateLimitedClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.TransactionReceipt(ctx, txHash)
}
