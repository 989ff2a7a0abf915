package domain

import "time"

type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "pending"
	SwapStatusAccepted  SwapStatus = "accepted"
	SwapStatusRejected  SwapStatus = "rejected"
	SwapStatusCancelled SwapStatus = "cancelled"
)

// ShiftSwapRequest 是员工发起的换班申请
// 状态一旦离开 pending 就是终态；TargetKey 为空表示单边替班（把源格子让给目标员工）
type ShiftSwapRequest struct {
	ID                   int64      `json:"id"`
	Scope                Scope      `json:"scope"`
	SourceKey            CellKey    `json:"sourceKey"`
	TargetKey            *CellKey   `json:"targetKey"`
	RequestingEmployeeID int64      `json:"requestingEmployeeID"`
	TargetEmployeeID     int64      `json:"targetEmployeeID"`
	Status               SwapStatus `json:"status"`
	ApproverID           *int64     `json:"approverID"`
	Notes                string     `json:"notes"`
	CreatedAt            time.Time  `json:"createdAt"`
	ResolvedAt           *time.Time `json:"resolvedAt"`
	Version              int32      `json:"-"`
}

// TwoSided 返回该申请是否为双边换班
func (r *ShiftSwapRequest) TwoSided() bool {
	return r.TargetKey != nil
}
