package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/betbot/sharefund/internal/fund"
	"github.com/betbot/sharefund/internal/journal"
	"github.com/betbot/sharefund/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var schedLog = logrus.WithField("component", "scheduler")

// DefaultSnapshotSpec 默认每分钟记录一次权益
const DefaultSnapshotSpec = "@every 1m"

// EquitySource 快照读取的基金视图
type EquitySource interface {
	Equity(ctx context.Context) (*big.Int, error)
	OnHand(ctx context.Context) (*big.Int, error)
	VenueBalance(ctx context.Context) (*big.Int, error)
	SharePrice(ctx context.Context) (*big.Int, error)
	TotalShares() *big.Int
}

// SnapshotRecorder 快照落库
type SnapshotRecorder interface {
	InsertEquitySnapshot(ctx context.Context, snap journal.EquitySnapshot) error
}

// Scheduler 定时任务。
// 除 cron 定时快照外，也作为 fund.EventSink：每次买卖后补记一次快照（信号合并，不排队）。
type Scheduler struct {
	Cron     *cron.Cron
	Source   EquitySource
	Recorder SnapshotRecorder
	Ctx      context.Context
	now      func() time.Time

	trigger chan struct{}
	stop    chan struct{}
	loopWG  sync.WaitGroup
}

// NewScheduler 创建调度器（cron 表达式支持秒字段）
func NewScheduler(ctx context.Context, src EquitySource, rec SnapshotRecorder) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Source:   src,
		Recorder: rec,
		Ctx:      ctx,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// RegisterSnapshot 注册权益快照任务；spec 为空用默认值
func (s *Scheduler) RegisterSnapshot(spec string) error {
	if spec == "" {
		spec = DefaultSnapshotSpec
	}
	if _, err := s.Cron.AddFunc(spec, func() {
		if err := s.TakeSnapshot(s.Ctx); err != nil {
			schedLog.Warnf("权益快照失败: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// HandleFundEvent 实现 fund.EventSink；只有买卖触发快照，发送不阻塞
func (s *Scheduler) HandleFundEvent(ev fund.Event) {
	switch ev.EventType() {
	case fund.EventDeposit, fund.EventWithdrawal:
	default:
		return
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start 启动
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.loopWG.Add(1)
	go s.triggerLoop()
	schedLog.Info("scheduler started")
}

// Stop 停止并等待正在运行的任务结束（只能调用一次）
func (s *Scheduler) Stop() {
	close(s.stop)
	s.loopWG.Wait()
	<-s.Cron.Stop().Done()
	schedLog.Info("scheduler stopped")
}

func (s *Scheduler) triggerLoop() {
	defer s.loopWG.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-s.Ctx.Done():
			return
		case <-s.trigger:
			if err := s.TakeSnapshot(s.Ctx); err != nil {
				schedLog.Warnf("事件触发的权益快照失败: %v", err)
			}
		}
	}
}

// TakeSnapshot 立即记录一次权益快照
func (s *Scheduler) TakeSnapshot(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	equity, err := s.Source.Equity(ctx)
	if err != nil {
		return fmt.Errorf("equity: %w", err)
	}
	onHand, err := s.Source.OnHand(ctx)
	if err != nil {
		return fmt.Errorf("on hand: %w", err)
	}
	inVenue, err := s.Source.VenueBalance(ctx)
	if err != nil {
		return fmt.Errorf("venue balance: %w", err)
	}
	price, err := s.Source.SharePrice(ctx)
	if err != nil {
		return fmt.Errorf("share price: %w", err)
	}
	snap := journal.EquitySnapshot{
		Equity:      equity,
		OnHand:      onHand,
		InVenue:     inVenue,
		TotalShares: s.Source.TotalShares(),
		SharePrice:  price,
		TS:          s.now().UTC(),
	}
	if err := s.Recorder.InsertEquitySnapshot(ctx, snap); err != nil {
		return err
	}
	metrics.EquitySnapshots.Add(1)
	schedLog.Debugf("权益快照: equity=%s price=%s", equity, price)
	return nil
}
