package metrics

import "expvar"

// 基金运行计数器（/debug/vars）
var (
	BuysTotal        = expvar.NewInt("fund_buys_total")
	SellsTotal       = expvar.NewInt("fund_sells_total")
	OpsRejected      = expvar.NewInt("fund_ops_rejected")
	OpsFailed        = expvar.NewInt("fund_ops_failed")
	ReentrantBlocked = expvar.NewInt("fund_reentrant_blocked")
	VenueSweeps      = expvar.NewInt("fund_venue_sweeps")
	VenueWithdrawals = expvar.NewInt("fund_venue_withdrawals")
	SnapshotSaves    = expvar.NewInt("snapshot_saves")
	SnapshotLoads    = expvar.NewInt("snapshot_loads")
	EquitySnapshots  = expvar.NewInt("equity_snapshots")

	// 非原子协作方下提交后无法回滚的失败，需要人工对账
	VenueSweepFailures  = expvar.NewInt("fund_venue_sweep_failures")
	FeeTransferFailures = expvar.NewInt("fund_fee_transfer_failures")
)
