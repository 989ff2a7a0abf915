package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func (h *Handler) GetAbsences(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.DateOnly, r.URL.Query().Get("from"))
	if err != nil {
		h.errorResponse(w, r, "无效的起始日期")
		return
	}
	to, err := time.Parse(time.DateOnly, r.URL.Query().Get("to"))
	if err != nil {
		h.errorResponse(w, r, "无效的结束日期")
		return
	}

	absences, err := h.repository.GetAbsencesOverlapping(from, to)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取缺勤记录成功", absences)
}

func (h *Handler) UpdateAbsenceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.errorResponse(w, r, "无效的缺勤记录编号")
		return
	}

	var req struct {
		Status string `json:"status" validate:"required,oneof=planned approved rejected"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	absence, err := h.repository.GetAbsenceByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.errorResponse(w, r, "缺勤记录不存在")
			return
		}
		h.internalServerError(w, r, err)
		return
	}

	status := domain.AbsenceStatus(req.Status)
	if err := h.repository.UpdateAbsenceStatus(absence, status); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.errorResponse(w, r, "缺勤记录已被他人修改，请刷新后重试")
			return
		}
		h.internalServerError(w, r, err)
		return
	}

	h.events.Publish(domain.EventAbsenceStatusChanged, domain.AbsenceStatusChangedData{
		AbsenceID:  absence.ID,
		EmployeeID: absence.EmployeeID,
		Status:     status,
	})
	h.successResponse(w, r, "更新缺勤状态成功", absence)
}
