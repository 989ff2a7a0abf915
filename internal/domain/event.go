package domain

import "time"

// 领域事件类型，通知子系统消费这些事件后自行渲染和投递
const (
	EventPeriodMutated        = "period_mutated"
	EventPlanPublished        = "plan_published"
	EventLockAcquired         = "lock_acquired"
	EventLockReleased         = "lock_released"
	EventSwapAccepted         = "swap_accepted"
	EventSwapRejected         = "swap_rejected"
	EventAbsenceStatusChanged = "absence_status_changed"
)

type EventMessage struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

type PeriodMutatedData struct {
	Scope     Scope    `json:"scope"`
	SessionID string   `json:"sessionID"`
	Diff      CellDiff `json:"diff"`
}

type PlanPublishedData struct {
	Scope      Scope `json:"scope"`
	EmployeeID int64 `json:"employeeID"`
}

type LockEventData struct {
	Scope     Scope  `json:"scope"`
	SessionID string `json:"sessionID"`
}

type SwapResolvedData struct {
	RequestID            int64   `json:"requestID"`
	Scope                Scope   `json:"scope"`
	RequestingEmployeeID int64   `json:"requestingEmployeeID"`
	TargetEmployeeID     int64   `json:"targetEmployeeID"`
	ApproverID           int64   `json:"approverID"`
	Notes                string  `json:"notes"`
	SourceKey            CellKey `json:"sourceKey"`
}

type AbsenceStatusChangedData struct {
	AbsenceID  int64         `json:"absenceID"`
	EmployeeID int64         `json:"employeeID"`
	Status     AbsenceStatus `json:"status"`
}
