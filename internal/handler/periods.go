package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	scope := r.Context().Value(ScopeCtx).(domain.Scope)

	view, err := h.grid.GetPeriod(scope)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取排班周期成功", view)
}

func (h *Handler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	scope := r.Context().Value(ScopeCtx).(domain.Scope)

	var req struct {
		SessionID  string `json:"sessionID" validate:"required"`
		TTLSeconds int    `json:"ttlSeconds" validate:"min=0"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	planningLock, err := h.locks.Acquire(r.Context(), scope, req.SessionID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.events.Publish(domain.EventLockAcquired, domain.LockEventData{Scope: scope, SessionID: req.SessionID})
	h.successResponse(w, r, "获取编辑锁成功", planningLock)
}

func (h *Handler) RenewLock(w http.ResponseWriter, r *http.Request) {
	scope := r.Context().Value(ScopeCtx).(domain.Scope)

	var req struct {
		SessionID  string `json:"sessionID" validate:"required"`
		TTLSeconds int    `json:"ttlSeconds" validate:"min=0"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	planningLock, err := h.locks.Renew(r.Context(), scope, req.SessionID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "续期编辑锁成功", planningLock)
}

func (h *Handler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	scope := r.Context().Value(ScopeCtx).(domain.Scope)

	var req struct {
		SessionID string `json:"sessionID" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.locks.Release(r.Context(), scope, req.SessionID); err != nil {
		h.coreError(w, r, err)
		return
	}

	h.events.Publish(domain.EventLockReleased, domain.LockEventData{Scope: scope, SessionID: req.SessionID})
	h.successResponse(w, r, "释放编辑锁成功", nil)
}

type cellPayload struct {
	Area       string `json:"area" validate:"required"`
	SubArea    string `json:"subArea" validate:"required"`
	Slot       string `json:"slot" validate:"required"`
	Day        int32  `json:"day" validate:"required,min=1,max=31"`
	EmployeeID *int64 `json:"employeeID"`
	Note       string `json:"note"`
	IsClosed   bool   `json:"isClosed"`
}

func (p *cellPayload) toCell() *domain.AssignmentCell {
	return &domain.AssignmentCell{
		Key: domain.CellKey{
			Area:    p.Area,
			SubArea: p.SubArea,
			Slot:    p.Slot,
			Day:     p.Day,
		},
		EmployeeID: p.EmployeeID,
		Note:       p.Note,
		IsClosed:   p.IsClosed,
	}
}

func (h *Handler) ReplaceCells(w http.ResponseWriter, r *http.Request) {
	scope := r.Context().Value(ScopeCtx).(domain.Scope)

	var req struct {
		SessionID string        `json:"sessionID" validate:"required"`
		Cells     []cellPayload `json:"cells" validate:"dive"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	cells := make([]*domain.AssignmentCell, len(req.Cells))
	for i := range req.Cells {
		cells[i] = req.Cells[i].toCell()
	}

	view, err := h.grid.ReplaceAll(r.Context(), scope, req.SessionID, cells)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "保存排班表成功", view)
}

func (h *Handler) UpsertCell(w http.ResponseWriter, r *http.Request) {
	scope := r.Context().Value(ScopeCtx).(domain.Scope)

	day, err := strconv.ParseInt(chi.URLParam(r, "day"), 10, 32)
	if err != nil {
		h.errorResponse(w, r, "无效的日期参数")
		return
	}

	var req struct {
		SessionID  string `json:"sessionID" validate:"required"`
		EmployeeID *int64 `json:"employeeID"`
		Note       string `json:"note"`
		IsClosed   bool   `json:"isClosed"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	cell := &domain.AssignmentCell{
		Key: domain.CellKey{
			Area:    chi.URLParam(r, "area"),
			SubArea: chi.URLParam(r, "subArea"),
			Slot:    chi.URLParam(r, "slot"),
			Day:     int32(day),
		},
		EmployeeID: req.EmployeeID,
		Note:       req.Note,
		IsClosed:   req.IsClosed,
	}

	view, err := h.grid.UpsertCell(r.Context(), scope, req.SessionID, cell)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "更新排班格子成功", view)
}

func (h *Handler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	scope := r.Context().Value(ScopeCtx).(domain.Scope)
	employeeID := r.Context().Value(EmployeeIDCtx).(int64)

	var req struct {
		SessionID    string `json:"sessionID" validate:"required"`
		TargetStatus string `json:"targetStatus" validate:"required,oneof=draft provisional published"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 发布需要单独的能力，其余转移只需要编辑能力
	target := domain.PlanStatus(req.TargetStatus)
	required := CapabilityRosterEdit
	if target == domain.PlanStatusPublished {
		required = CapabilityRosterPublish
	}
	if !h.hasCapability(r, required) {
		h.errorResponse(w, r, "权限不足")
		return
	}

	period, err := h.grid.Transition(r.Context(), scope, req.SessionID, target, employeeID)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "状态转移成功", period)
}

func (h *Handler) ArchivePeriod(w http.ResponseWriter, r *http.Request) {
	scope := r.Context().Value(ScopeCtx).(domain.Scope)

	var req struct {
		SessionID string `json:"sessionID" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	period, err := h.grid.Archive(r.Context(), scope, req.SessionID)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "归档排班周期成功", period)
}
