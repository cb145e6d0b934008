package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/betbot/sharefund/internal/chain"
	"github.com/betbot/sharefund/internal/fund"
	"github.com/betbot/sharefund/internal/journal"
	"github.com/betbot/sharefund/internal/ledger"
	"github.com/betbot/sharefund/internal/metrics"
	"github.com/betbot/sharefund/internal/scheduler"
	"github.com/betbot/sharefund/internal/server"
	"github.com/betbot/sharefund/pkg/config"
	"github.com/betbot/sharefund/pkg/persistence"
	"github.com/betbot/sharefund/pkg/ratelimit"
	"github.com/betbot/sharefund/pkg/sharemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const stateStorePrefix = "sharefund"

// backend 资产与收益场所的具体实现（内存账本或链上合约）
type backend struct {
	account common.Address
	asset   fund.Asset
	venue   fund.YieldVenue // hold 策略时可为 nil
	faucet  server.Faucet   // 仅模拟模式
	close   func()
}

// app 组装好的进程内组件
type app struct {
	cfg       *config.Config
	fund      *fund.Fund
	backend   *backend
	store     persistence.Service
	journal   *journal.Journal
	hub       *server.Hub
	scheduler *scheduler.Scheduler
	server    *server.Server
}

func newSimBackend(cfg *config.Config) (*backend, error) {
	l := ledger.New()
	token := l.CreateToken(cfg.Sim.AssetSymbol, cfg.Sim.AssetDecimals)
	account := ledger.DeriveAddress("fund")
	b := &backend{
		account: account,
		asset:   l.Asset(token, account),
		faucet:  &server.LedgerFaucet{Ledger: l, Asset: token, Spender: account},
		close:   func() {},
	}
	if cfg.Fund.Strategy == fund.StrategyYield {
		if cfg.Sim.ListReserve {
			if _, err := l.ListReserve(token); err != nil {
				return nil, err
			}
		}
		b.venue = l.Pool(account)
	}
	return b, nil
}

func newChainBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	var (
		signer *chain.Signer
		err    error
	)
	if cfg.Chain.PrivateKey != "" {
		signer, err = chain.NewSigner(cfg.Chain.PrivateKey)
	} else {
		signer, err = chain.SignerFromMnemonic(cfg.Chain.Mnemonic, cfg.Chain.DerivationPath)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load signer")
	}
	client, chainID, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	var rpc chain.Client = client
	if cfg.Chain.RPCRateLimit > 0 {
		rpc = chain.WithRateLimit(client, ratelimit.NewTokenBucket(cfg.Chain.RPCBurst, cfg.Chain.RPCRateLimit))
	}
	tx := chain.NewTransactor(rpc, signer, chainID)
	b := &backend{
		account: signer.Address(),
		asset:   chain.NewToken(cfg.Chain.Asset, tx),
		close:   client.Close,
	}
	if cfg.Fund.Strategy == fund.StrategyYield {
		b.venue = chain.NewPool(cfg.Chain.Pool, tx)
	}
	return b, nil
}

func buildApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	switch cfg.Mode {
	case config.ModeChain:
		a.backend, err = newChainBackend(ctx, cfg)
	default:
		a.backend, err = newSimBackend(cfg)
	}
	if err != nil {
		return a, err
	}
	b := a.backend

	var strategy fund.Strategy = fund.NewHoldStrategy()
	if cfg.Fund.Strategy == fund.StrategyYield {
		strategy = fund.NewYieldStrategy(ctx, b.venue, b.asset.Address(), fund.YieldOptions{
			ReferralCode: cfg.Fund.ReferralCode,
			Receipt:      cfg.Fund.Receipt,
		})
	}

	decimals, err := b.asset.Decimals(ctx)
	if err != nil {
		return a, errors.Wrap(err, "read asset decimals")
	}
	minInvestment, err := sharemath.ParseUnits(cfg.Fund.MinInvestment, decimals)
	if err != nil {
		return a, errors.Wrap(err, "fund.min_investment")
	}
	a.fund, err = fund.New(ctx, fund.Config{
		Account:       b.account,
		Owner:         cfg.Fund.Owner,
		MinInvestment: minInvestment,
		BuyFeeBps:     cfg.Fund.BuyFeeBps,
		SellFeeBps:    cfg.Fund.SellFeeBps,
		FeeCollector:  cfg.Fund.FeeCollector,
	}, b.asset, strategy)
	if err != nil {
		return a, err
	}

	// 状态快照：启动时恢复，之后每次成功变更写回
	a.store, err = persistence.Open(cfg.Store.Type, cfg.Store.Dir, cfg.Store.EncryptionKey)
	if err != nil {
		return a, errors.Wrap(err, "open state store")
	}
	store := a.store.NewStore(stateStorePrefix, strings.ToLower(b.account.Hex()), "state")
	st, ok, err := fund.LoadState(store)
	if err != nil {
		return a, errors.Wrap(err, "load fund state")
	}
	if ok {
		if err := a.fund.Restore(st); err != nil {
			return a, errors.Wrap(err, "restore fund state")
		}
	}
	a.fund.SetStateSaver(fund.NewStoreSaver(store))

	a.journal, err = journal.Open(cfg.JournalPath)
	if err != nil {
		return a, errors.Wrap(err, "open journal")
	}
	a.fund.AddSink(a.journal)

	a.hub = server.NewHub()
	a.fund.AddSink(a.hub)

	a.scheduler = scheduler.NewScheduler(ctx, a.fund, a.journal)
	if err := a.scheduler.RegisterSnapshot(cfg.SnapshotCron); err != nil {
		return a, err
	}
	a.fund.AddSink(a.scheduler)

	a.server, err = server.New(server.Config{
		Fund:     a.fund,
		Journal:  a.journal,
		Hub:      a.hub,
		AdminKey: cfg.AdminKey,
		Faucet:   b.faucet,
	})
	if err != nil {
		return a, err
	}
	return a, nil
}

// close 释放已打开的资源（buildApp 失败时使用；正常退出走 shutdown.Manager）
func (a *app) close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.backend != nil && a.backend.close != nil {
		a.backend.close()
	}
}

func (a *app) describe() string {
	return fmt.Sprintf("mode=%s strategy=%s account=%s asset=%s", a.cfg.Mode, a.fund.StrategyName(), a.fund.Account().Hex(), a.fund.AssetAddress().Hex())
}

// debugStatus /debug/fund 的内容：实时权益读数 + 需要人工对账的计数
func (a *app) debugStatus(ctx context.Context) (any, error) {
	equity, err := a.fund.Equity(ctx)
	if err != nil {
		return nil, err
	}
	price, err := a.fund.SharePrice(ctx)
	if err != nil {
		return nil, err
	}
	p := a.fund.Params()
	return map[string]any{
		"strategy":         a.fund.StrategyName(),
		"equity":           equity.String(),
		"share_price":      price.String(),
		"last_share_price": a.fund.LastSharePrice().String(),
		"total_shares":     a.fund.TotalShares().String(),
		"buy_fee_bps":      p.BuyFeeBps,
		"sell_fee_bps":     p.SellFeeBps,
		"reconcile":        metrics.ReconcileCounters(),
	}, nil
}
