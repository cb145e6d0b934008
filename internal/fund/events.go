package fund

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event 基金事件
type Event interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
}

const (
	EventDeposit      = "deposit"
	EventWithdrawal   = "withdrawal"
	EventParamChanged = "param_changed"
	EventVenue        = "venue"
)

// Meta 事件公共字段
type Meta struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func newMeta(typ string) Meta {
	return Meta{ID: uuid.NewString(), Type: typ, Timestamp: time.Now().UTC()}
}

func (m Meta) EventID() string       { return m.ID }
func (m Meta) EventType() string     { return m.Type }
func (m Meta) OccurredAt() time.Time { return m.Timestamp }

// DepositEvent 买入份额
type DepositEvent struct {
	Meta
	Holder       common.Address `json:"holder"`
	Amount       *big.Int       `json:"amount"`
	SharesMinted *big.Int       `json:"shares_minted"`
	EquityChange *big.Int       `json:"equity_change"`
	Fee          *big.Int       `json:"fee"`
	SharePrice   *big.Int       `json:"share_price"`
}

// WithdrawalEvent 赎回份额
type WithdrawalEvent struct {
	Meta
	Holder       common.Address `json:"holder"`
	SharesBurned *big.Int       `json:"shares_burned"`
	AmountToPay  *big.Int       `json:"amount_to_pay"`
	Fee          *big.Int       `json:"fee"`
	AmountPaid   *big.Int       `json:"amount_paid"`
	SharePrice   *big.Int       `json:"share_price"`
}

// ParamChangedEvent 管理参数变更
type ParamChangedEvent struct {
	Meta
	Param    string `json:"param"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// VenueEvent 手动调仓（存入/取出收益场所）
type VenueEvent struct {
	Meta
	Action string   `json:"action"` // "deposit" | "withdraw"
	Amount *big.Int `json:"amount"`
}
