package fund

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/betbot/sharefund/internal/metrics"
	"github.com/betbot/sharefund/pkg/sharemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var fundLog = logrus.WithField("component", "fund")

// MaxFeeBps 买入/卖出费率上限（10%）
const MaxFeeBps = 1000

// Config 基金创建参数
type Config struct {
	// Account 基金自身在资产上的账户
	Account       common.Address
	Owner         common.Address
	MinInvestment *big.Int
	BuyFeeBps     uint16
	SellFeeBps    uint16
	FeeCollector  common.Address
}

// Fund 份额记账状态机。
//
// 说明：
// - state 只能通过 Buy/Sell/管理接口修改；
// - guard 保证同一实例上同一时刻最多一个变更操作，嵌套/并发调用直接拒绝（不排队）；
// - mu 只在读写 state 字段时短暂持有，协作方调用期间不持有，因此读接口不受 guard 限制。
type Fund struct {
	account  common.Address
	asset    Asset
	strategy Strategy
	unit     *big.Int

	guard sync.Mutex

	mu    sync.RWMutex
	state State

	hooksMu sync.RWMutex
	sinks   []EventSink
	saver   StateSaver
}

// New 创建基金。decimals 从资产读取并固定；lastSharePrice 初始化为 10^decimals。
func New(ctx context.Context, cfg Config, asset Asset, strategy Strategy) (*Fund, error) {
	if asset == nil {
		return nil, errors.New("fund: asset is required")
	}
	if strategy == nil {
		return nil, errors.New("fund: strategy is required")
	}
	if cfg.Account == (common.Address{}) || cfg.Owner == (common.Address{}) || cfg.FeeCollector == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if cfg.BuyFeeBps > MaxFeeBps || cfg.SellFeeBps > MaxFeeBps {
		return nil, ErrFeeTooHigh
	}
	minInv := zeroIfNil(cfg.MinInvestment)
	if minInv.Sign() < 0 {
		return nil, fmt.Errorf("fund: negative min investment")
	}
	decimals, err := asset.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("fund: read asset decimals: %w", err)
	}
	if err := sharemath.CheckDecimals(decimals); err != nil {
		return nil, err
	}

	f := &Fund{
		account:  cfg.Account,
		asset:    asset,
		strategy: strategy,
		unit:     sharemath.Pow10(decimals),
		state: State{
			Decimals:       decimals,
			TotalShares:    new(big.Int),
			LastSharePrice: sharemath.Pow10(decimals),
			SharesOf:       make(map[common.Address]*big.Int),
			MinInvestment:  new(big.Int).Set(minInv),
			BuyFeeBps:      cfg.BuyFeeBps,
			SellFeeBps:     cfg.SellFeeBps,
			FeeCollector:   cfg.FeeCollector,
			Owner:          cfg.Owner,
		},
	}
	fundLog.Infof("基金已创建: account=%s asset=%s decimals=%d strategy=%s", cfg.Account.Hex(), asset.Address().Hex(), decimals, strategy.Name())
	return f, nil
}

// Restore 用持久化状态覆盖当前状态（仅启动时、无份额的新实例上调用）
func (f *Fund) Restore(st State) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if !f.guard.TryLock() {
		return ErrReentrantCall
	}
	defer f.guard.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if st.Decimals != f.state.Decimals {
		return fmt.Errorf("%w: decimals %d != asset decimals %d", ErrInvalidState, st.Decimals, f.state.Decimals)
	}
	if f.state.TotalShares.Sign() != 0 {
		return fmt.Errorf("%w: fund already has shares", ErrInvalidState)
	}
	f.state = st.Clone()
	if vm, ok := f.strategy.(VenueManager); ok && st.Receipt != (common.Address{}) {
		vm.SetReceipt(st.Receipt)
	}
	metrics.SnapshotLoads.Add(1)
	fundLog.Infof("已恢复基金状态: totalShares=%s lastPrice=%s holders=%d", st.TotalShares, st.LastSharePrice, len(st.SharesOf))
	return nil
}

// AddSink 注册事件接收方
func (f *Fund) AddSink(s EventSink) {
	f.hooksMu.Lock()
	defer f.hooksMu.Unlock()
	f.sinks = append(f.sinks, s)
}

// SetStateSaver 设置状态持久化
func (f *Fund) SetStateSaver(s StateSaver) {
	f.hooksMu.Lock()
	defer f.hooksMu.Unlock()
	f.saver = s
}

func (f *Fund) holdings() Holdings {
	return Holdings{Asset: f.asset, Account: f.account}
}

// opTx 单次变更操作的工作区：待发事件 + 非原子协作方下的补偿动作。
// atomic 为 true 时协作方会整体回滚，任何失败都可以直接返回。
type opTx struct {
	atomic    bool
	events    []Event
	rollbacks []func(ctx context.Context) error
}

func (tx *opTx) emit(ev Event) { tx.events = append(tx.events, ev) }

func (tx *opTx) onRollback(fn func(ctx context.Context) error) {
	tx.rollbacks = append(tx.rollbacks, fn)
}

// execute 运行一次变更操作：
// 抢占 guard（失败即 ErrReentrantCall）→ 快照状态 → 执行 →
// 失败则恢复状态并回滚协作方（Atomic）或执行补偿；成功则持久化，释放 guard 后投递事件。
func (f *Fund) execute(ctx context.Context, op string, fn func(tx *opTx) error) error {
	if !f.guard.TryLock() {
		metrics.ReentrantBlocked.Add(1)
		fundLog.WithField("op", op).Warn("拒绝重入调用")
		return ErrReentrantCall
	}
	tx := &opTx{}
	err := f.runLocked(ctx, op, tx, fn)
	f.guard.Unlock()
	if err != nil {
		return err
	}
	f.dispatch(tx.events)
	return nil
}

func (f *Fund) runLocked(ctx context.Context, op string, tx *opTx, fn func(tx *opTx) error) error {
	snap := f.snapshot()

	run := func() error { return fn(tx) }
	var err error
	atomic, isAtomic := f.asset.(Atomic)
	tx.atomic = isAtomic
	if isAtomic {
		err = atomic.Atomically(run)
	} else {
		err = run()
	}
	if err != nil {
		f.mu.Lock()
		f.state = snap
		f.mu.Unlock()
		if !isAtomic {
			err = f.compensate(ctx, op, tx, err)
		}
		if IsValidation(err) {
			metrics.OpsRejected.Add(1)
		} else {
			metrics.OpsFailed.Add(1)
		}
		fundLog.WithField("op", op).Warnf("操作中止: %v", err)
		return err
	}

	f.hooksMu.RLock()
	saver := f.saver
	f.hooksMu.RUnlock()
	if saver != nil {
		if serr := saver.SaveState(f.Snapshot()); serr != nil {
			// 链上效果已发生，不能因为本地持久化失败回滚
			fundLog.WithField("op", op).Errorf("保存状态失败: %v", serr)
		} else {
			metrics.SnapshotSaves.Add(1)
		}
	}
	return nil
}

// compensate 逆序执行补偿动作，补偿失败与原始错误合并返回
func (f *Fund) compensate(ctx context.Context, op string, tx *opTx, cause error) error {
	errs := []error{cause}
	for i := len(tx.rollbacks) - 1; i >= 0; i-- {
		if err := tx.rollbacks[i](ctx); err != nil {
			fundLog.WithField("op", op).Errorf("补偿失败，需要人工对账: %v", err)
			errs = append(errs, fmt.Errorf("compensation: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fund) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	f.hooksMu.RLock()
	sinks := append([]EventSink(nil), f.sinks...)
	f.hooksMu.RUnlock()
	for _, ev := range events {
		for _, s := range sinks {
			s.HandleFundEvent(ev)
		}
	}
}

// snapshot 深拷贝当前状态（用于失败恢复）
func (f *Fund) snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Clone()
}

// Snapshot 返回状态副本（含收益凭证地址）
func (f *Fund) Snapshot() State {
	st := f.snapshot()
	if vm, ok := f.strategy.(VenueManager); ok {
		if r, ok := vm.Receipt(); ok {
			st.Receipt = r
		}
	}
	return st
}

// ---- 只读接口 ----

// Account 基金账户地址
func (f *Fund) Account() common.Address { return f.account }

// AssetAddress 基础资产地址
func (f *Fund) AssetAddress() common.Address { return f.asset.Address() }

// StrategyName 策略名
func (f *Fund) StrategyName() string { return f.strategy.Name() }

// Decimals 资产精度
func (f *Fund) Decimals() uint8 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Decimals
}

// Equity 当前总权益（每次实时测量）
func (f *Fund) Equity(ctx context.Context) (*big.Int, error) {
	return f.strategy.Equity(ctx, f.holdings())
}

// VenueBalance 收益场所中的余额；无收益场所时为 0
func (f *Fund) VenueBalance(ctx context.Context) (*big.Int, error) {
	vm, ok := f.strategy.(VenueManager)
	if !ok {
		return new(big.Int), nil
	}
	return vm.VenueBalance(ctx, f.holdings())
}

// OnHand 基金账户上的资产余额
func (f *Fund) OnHand(ctx context.Context) (*big.Int, error) {
	return f.asset.BalanceOf(ctx, f.account)
}

// SharePrice 当前份额价格；无份额时为回退价格
func (f *Fund) SharePrice(ctx context.Context) (*big.Int, error) {
	equity, err := f.Equity(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	total, last, d := cloneInt(f.state.TotalShares), cloneInt(f.state.LastSharePrice), f.state.Decimals
	f.mu.RUnlock()
	return sharemath.SharePrice(equity, total, last, d)
}

// SharesBalance 持有人份额
func (f *Fund) SharesBalance(holder common.Address) *big.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneInt(zeroIfNil(f.state.SharesOf[holder]))
}

// SharesValue 持有人份额按当前价格折算的资产数量
func (f *Fund) SharesValue(ctx context.Context, holder common.Address) (*big.Int, error) {
	price, err := f.SharePrice(ctx)
	if err != nil {
		return nil, err
	}
	bal := f.SharesBalance(holder)
	v := new(big.Int).Mul(bal, price)
	return v.Quo(v, f.unit), nil
}

// LastSharePrice 上次成交后的价格
func (f *Fund) LastSharePrice() *big.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneInt(f.state.LastSharePrice)
}

// TotalShares 总份额
func (f *Fund) TotalShares() *big.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneInt(f.state.TotalShares)
}

// Params 管理参数
type Params struct {
	MinInvestment *big.Int       `json:"min_investment"`
	BuyFeeBps     uint16         `json:"buy_fee_bps"`
	SellFeeBps    uint16         `json:"sell_fee_bps"`
	FeeCollector  common.Address `json:"fee_collector"`
	Owner         common.Address `json:"owner"`
}

// Params 返回管理参数副本
func (f *Fund) Params() Params {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Params{
		MinInvestment: cloneInt(f.state.MinInvestment),
		BuyFeeBps:     f.state.BuyFeeBps,
		SellFeeBps:    f.state.SellFeeBps,
		FeeCollector:  f.state.FeeCollector,
		Owner:         f.state.Owner,
	}
}

// Receipt 收益凭证地址（仅 yield 策略且已解析时 ok=true）
func (f *Fund) Receipt() (common.Address, bool) {
	vm, ok := f.strategy.(VenueManager)
	if !ok {
		return common.Address{}, false
	}
	return vm.Receipt()
}
