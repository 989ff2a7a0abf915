package handler

import "net/http"

func (h *Handler) GetAllEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.repository.GetAllEmployees()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取员工列表成功", employees)
}

func (h *Handler) GetAllRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.repository.GetAllRooms()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取诊室列表成功", rooms)
}

func (h *Handler) GetAllServiceLines(w http.ResponseWriter, r *http.Request) {
	serviceLines, err := h.repository.GetAllServiceLines()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取业务线列表成功", serviceLines)
}

func (h *Handler) GetAllRoleSlots(w http.ResponseWriter, r *http.Request) {
	roleSlots, err := h.repository.GetAllRoleSlots()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取岗位列表成功", roleSlots)
}
