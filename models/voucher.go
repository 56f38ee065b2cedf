package models

import (
	"time"
)

// Voucher is the internal discount record. A nil Amount covers the full price.
type Voucher struct {
	ID             string        `json:"id"`
	Amount         *int64        `json:"amount"`
	TargetType     VoucherTarget `json:"target_type"`
	TargetID       string        `json:"target_id"`
	TargetSubID    string        `json:"target_sub_id,omitempty"`
	UsedCount      int           `json:"used_count"`
	UsedCountLimit *int          `json:"used_count_limit"`
	Created        time.Time     `json:"created"`
}

func (v *Voucher) FullCoverage() bool {
	return v.Amount == nil
}

func (v *Voucher) Exhausted() bool {
	return v.UsedCountLimit != nil && v.UsedCount >= *v.UsedCountLimit
}

// AppliesTo reports whether the voucher may be used for targetID and, when the
// voucher is restricted, for the sub target (space or ticket type).
func (v *Voucher) AppliesTo(targetType VoucherTarget, targetID, subID string) bool {
	if v.TargetType != targetType || v.TargetID != targetID {
		return false
	}
	return v.TargetSubID == "" || v.TargetSubID == subID
}
