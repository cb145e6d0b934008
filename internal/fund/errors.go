package fund

import "errors"

// 校验类错误：在任何状态变更之前返回，操作无任何效果
var (
	ErrBelowMinInvestment = errors.New("fund: amount below minimum investment")
	ErrZeroAmount         = errors.New("fund: amount must be positive")
	ErrZeroShares         = errors.New("fund: shares must be positive")
	ErrInsufficientShares = errors.New("fund: insufficient shares")
	ErrFeeTooHigh         = errors.New("fund: fee exceeds maximum")
	ErrZeroAddress        = errors.New("fund: zero address")
	ErrNotOwner           = errors.New("fund: caller is not the owner")
	ErrNothingMinted      = errors.New("fund: deposit too small to mint shares")
	ErrNoEquityChange     = errors.New("fund: deposit did not increase equity")
	ErrVenueUnsupported   = errors.New("fund: strategy has no yield venue")
)

// 协作方/运行时错误：整次操作中止
var (
	ErrReentrantCall  = errors.New("fund: operation already in progress")
	ErrTransferFailed = errors.New("fund: asset transfer failed")
	ErrVenueFailed    = errors.New("fund: yield venue call failed")
	ErrVenueShortfall = errors.New("fund: yield venue returned less than requested")
	ErrInvalidState   = errors.New("fund: invalid persisted state")
)

// IsValidation 判断是否为调用方输入导致的错误（HTTP 层映射为 4xx）
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrBelowMinInvestment, ErrZeroAmount, ErrZeroShares, ErrInsufficientShares,
		ErrFeeTooHigh, ErrZeroAddress, ErrNotOwner, ErrNothingMinted, ErrNoEquityChange,
		ErrVenueUnsupported,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
