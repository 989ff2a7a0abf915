package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func (h *Handler) logInternalServerError(r *http.Request, err error) {
	slog.Error("服务器内部错误", "method", r.Method, "path", r.URL.Path, "error", err)
}

func (h *Handler) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logInternalServerError(r, err)
		http.Error(w, "服务器内部错误", http.StatusInternalServerError)
	}
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, msg string) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Message: msg,
		Data:    nil,
	})
}

// failureResponse 用于携带结构化失败信息的响应，例如冲突列表和锁的持有者
func (h *Handler) failureResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Message: msg,
		Data:    data,
	})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		h.errorResponse(w, r, err.Error())
		return
	}

	h.errorResponse(w, r, validationErrors[0].Translate(h.translator))
}

func (h *Handler) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.logInternalServerError(r, err)
	h.writeJSON(w, r, http.StatusInternalServerError, Response{
		Success: false,
		Message: "服务器内部错误",
		Data:    nil,
	})
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

// coreError 把核心返回的类型化失败映射为响应
// 这些失败都是调用方可以恢复的，只有未知错误才按服务器内部错误处理
func (h *Handler) coreError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *domain.ValidationError
	var lockConflictErr *domain.LockConflictError
	var transitionErr *domain.InvalidTransitionError

	switch {
	case errors.As(err, &validationErr):
		h.failureResponse(w, r, validationErr.Error(), validationErr)
	case errors.As(err, &lockConflictErr):
		h.failureResponse(w, r, lockConflictErr.Error(), lockConflictErr)
	case errors.As(err, &transitionErr):
		h.failureResponse(w, r, transitionErr.Error(), transitionErr)
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrLockRequired),
		errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrPeriodArchived),
		errors.Is(err, domain.ErrCellChanged),
		errors.Is(err, domain.ErrNotRequester):
		h.errorResponse(w, r, err.Error())
	default:
		h.internalServerError(w, r, err)
	}
}
