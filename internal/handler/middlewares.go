package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.StatusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (h *Handler) logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &ResponseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		slog.Info("已处理请求", "status", rw.StatusCode, "ip", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "duration", duration)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.internalServerError(w, r, fmt.Errorf("panic: %v", err))
				stackTrace := string(debug.Stack())
				fmt.Print(stackTrace) // 这里如果用 slog 的话会很乱
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// IdentityClaims 是外部身份服务签发的令牌内容
// 本核心信任其中的员工身份和能力列表，不自己做认证
type IdentityClaims struct {
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 优先从 Authorization 头中取令牌，兼容 cookie
		tokenString := ""
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenString = strings.TrimPrefix(header, "Bearer ")
		} else {
			cookie, err := r.Cookie("__duty_roster_token")
			if err != nil {
				switch {
				case errors.Is(err, http.ErrNoCookie):
					h.errorResponse(w, r, "用户未登录")
				default:
					h.internalServerError(w, r, err)
				}
				return
			}
			tokenString = cookie.Value
		}

		claims := &IdentityClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(h.config.Identity.JWTSecret), nil
		})
		if err != nil {
			h.errorResponse(w, r, "无效的令牌")
			return
		}

		employeeID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			h.errorResponse(w, r, "无效的令牌")
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, EmployeeIDCtx, employeeID)
		ctx = context.WithValue(ctx, CapabilitiesCtx, claims.Capabilities)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) hasCapability(r *http.Request, capability string) bool {
	capabilities := r.Context().Value(CapabilitiesCtx).([]string)
	return slices.Contains(capabilities, capability)
}

func (h *Handler) RequiredCapability(capability string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !h.hasCapability(r, capability) {
				h.errorResponse(w, r, "权限不足")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// scopeCtx 解析 URL 中的排班周期参数并放进 context
func (h *Handler) scopeCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopeParam := chi.URLParam(r, "scope")
		scope, err := domain.ParseScope(scopeParam, r.URL.Query().Get("department"))
		if err != nil {
			h.errorResponse(w, r, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), ScopeCtx, scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) swapRequestCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idParam := chi.URLParam(r, "id")
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			h.errorResponse(w, r, "换班申请ID无效")
			return
		}

		req, err := h.swaps.GetByID(id)
		if err != nil {
			h.coreError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), SwapRequestCtx, req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
