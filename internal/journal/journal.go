// Package journal SQLite 流水：已提交的基金事件与定时权益快照。
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/betbot/sharefund/internal/fund"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var journalLog = logrus.WithField("component", "journal")

// Journal 事件与快照流水
type Journal struct {
	db *sql.DB
}

// Open 打开（或创建）数据库并迁移；path 为 ":memory:" 时使用内存库
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close 关闭数据库
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS fund_events (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  holder TEXT,
  payload TEXT NOT NULL,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_fund_events_ts ON fund_events(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_fund_events_holder ON fund_events(holder, ts);`,
		`
CREATE TABLE IF NOT EXISTS equity_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  equity TEXT NOT NULL,
  on_hand TEXT NOT NULL,
  in_venue TEXT NOT NULL,
  total_shares TEXT NOT NULL,
  share_price TEXT NOT NULL,
  ts TEXT NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// EventRecord 流水中的一条事件
type EventRecord struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Holder  string          `json:"holder,omitempty"`
	Payload json.RawMessage `json:"payload"`
	TS      time.Time       `json:"ts"`
}

// EventFilter 查询条件，零值字段不过滤
type EventFilter struct {
	Type   string
	Holder common.Address
	Limit  int
}

func holderOf(ev fund.Event) string {
	switch e := ev.(type) {
	case *fund.DepositEvent:
		return e.Holder.Hex()
	case *fund.WithdrawalEvent:
		return e.Holder.Hex()
	}
	return ""
}

// InsertEvent 写入一条事件（id 重复时忽略）
func (j *Journal) InsertEvent(ctx context.Context, ev fund.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
INSERT OR IGNORE INTO fund_events (id, type, holder, payload, ts)
VALUES (?,?,?,?,?)
`, ev.EventID(), ev.EventType(), holderOf(ev), string(payload), ev.OccurredAt().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// HandleFundEvent 实现 fund.EventSink；写入失败只记日志
func (j *Journal) HandleFundEvent(ev fund.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.InsertEvent(ctx, ev); err != nil {
		journalLog.WithField("event", ev.EventID()).Errorf("记录事件失败: %v", err)
	}
}

// ListEvents 按时间倒序
func (j *Journal) ListEvents(ctx context.Context, f EventFilter) ([]EventRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	q := `SELECT id, type, holder, payload, ts FROM fund_events WHERE 1=1`
	var args []interface{}
	if f.Type != "" {
		q += ` AND type=?`
		args = append(args, f.Type)
	}
	if f.Holder != (common.Address{}) {
		q += ` AND holder=?`
		args = append(args, f.Holder.Hex())
	}
	q += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec     EventRecord
			holder  sql.NullString
			payload string
			ts      string
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &holder, &payload, &ts); err != nil {
			return nil, err
		}
		rec.Holder = holder.String
		rec.Payload = json.RawMessage(payload)
		rec.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EquitySnapshot 某一时刻的基金权益
type EquitySnapshot struct {
	Equity      *big.Int  `json:"equity"`
	OnHand      *big.Int  `json:"on_hand"`
	InVenue     *big.Int  `json:"in_venue"`
	TotalShares *big.Int  `json:"total_shares"`
	SharePrice  *big.Int  `json:"share_price"`
	TS          time.Time `json:"ts"`
}

// InsertEquitySnapshot 写入快照；大整数按十进制字符串存储
func (j *Journal) InsertEquitySnapshot(ctx context.Context, snap EquitySnapshot) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO equity_snapshots (equity, on_hand, in_venue, total_shares, share_price, ts)
VALUES (?,?,?,?,?,?)
`, snap.Equity.String(), snap.OnHand.String(), snap.InVenue.String(), snap.TotalShares.String(), snap.SharePrice.String(), snap.TS.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert equity: %w", err)
	}
	return nil
}

// ListEquitySnapshots 按时间倒序
func (j *Journal) ListEquitySnapshots(ctx context.Context, limit int) ([]EquitySnapshot, error) {
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT equity, on_hand, in_venue, total_shares, share_price, ts
FROM equity_snapshots
ORDER BY ts DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var equity, onHand, inVenue, total, price, ts string
		if err := rows.Scan(&equity, &onHand, &inVenue, &total, &price, &ts); err != nil {
			return nil, err
		}
		snap := EquitySnapshot{}
		for _, p := range []struct {
			dst **big.Int
			raw string
		}{{&snap.Equity, equity}, {&snap.OnHand, onHand}, {&snap.InVenue, inVenue}, {&snap.TotalShares, total}, {&snap.SharePrice, price}} {
			v, ok := new(big.Int).SetString(p.raw, 10)
			if !ok {
				return nil, fmt.Errorf("bad integer %q in equity_snapshots", p.raw)
			}
			*p.dst = v
		}
		snap.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, snap)
	}
	return out, rows.Err()
}
