package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

type cellKeyPayload struct {
	Area    string `json:"area" validate:"required"`
	SubArea string `json:"subArea" validate:"required"`
	Slot    string `json:"slot" validate:"required"`
	Day     int32  `json:"day" validate:"required,min=1,max=31"`
}

func (p *cellKeyPayload) toKey() domain.CellKey {
	return domain.CellKey{
		Area:    p.Area,
		SubArea: p.SubArea,
		Slot:    p.Slot,
		Day:     p.Day,
	}
}

func (h *Handler) CreateSwapRequest(w http.ResponseWriter, r *http.Request) {
	employeeID := r.Context().Value(EmployeeIDCtx).(int64)

	var req struct {
		Scope            string          `json:"scope" validate:"required"`
		Department       string          `json:"department"`
		SourceKey        cellKeyPayload  `json:"sourceKey" validate:"required"`
		TargetKey        *cellKeyPayload `json:"targetKey"`
		TargetEmployeeID int64           `json:"targetEmployeeID" validate:"required"`
		Notes            string          `json:"notes"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	scope, err := domain.ParseScope(req.Scope, req.Department)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	var targetKey *domain.CellKey
	if req.TargetKey != nil {
		key := req.TargetKey.toKey()
		targetKey = &key
	}

	request, err := h.swaps.Create(employeeID, scope, req.SourceKey.toKey(), targetKey, req.TargetEmployeeID, req.Notes)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "创建换班申请成功", request)
}

func (h *Handler) GetMySwapRequests(w http.ResponseWriter, r *http.Request) {
	employeeID := r.Context().Value(EmployeeIDCtx).(int64)

	requests, err := h.swaps.ListByEmployee(employeeID)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取换班申请列表成功", requests)
}

func (h *Handler) GetSwapRequest(w http.ResponseWriter, r *http.Request) {
	request := r.Context().Value(SwapRequestCtx).(*domain.ShiftSwapRequest)
	h.successResponse(w, r, "获取换班申请成功", request)
}

func (h *Handler) AcceptSwapRequest(w http.ResponseWriter, r *http.Request) {
	request := r.Context().Value(SwapRequestCtx).(*domain.ShiftSwapRequest)
	approverID := r.Context().Value(EmployeeIDCtx).(int64)

	// 备注可以不传，空请求体也允许
	var req struct {
		Notes string `json:"notes"`
	}

	if err := h.readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.swaps.Accept(request.ID, approverID, req.Notes)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "通过换班申请成功", result)
}

func (h *Handler) RejectSwapRequest(w http.ResponseWriter, r *http.Request) {
	request := r.Context().Value(SwapRequestCtx).(*domain.ShiftSwapRequest)
	approverID := r.Context().Value(EmployeeIDCtx).(int64)

	var req struct {
		Notes string `json:"notes"`
	}

	if err := h.readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, r, err)
		return
	}

	resolved, err := h.swaps.Reject(request.ID, approverID, req.Notes)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "拒绝换班申请成功", resolved)
}

func (h *Handler) CancelSwapRequest(w http.ResponseWriter, r *http.Request) {
	request := r.Context().Value(SwapRequestCtx).(*domain.ShiftSwapRequest)
	requesterID := r.Context().Value(EmployeeIDCtx).(int64)

	resolved, err := h.swaps.Cancel(request.ID, requesterID)
	if err != nil {
		h.coreError(w, r, err)
		return
	}

	h.successResponse(w, r, "撤回换班申请成功", resolved)
}
