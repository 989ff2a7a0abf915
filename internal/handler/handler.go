package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/config"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/event"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/grid"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/lock"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/repository"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/swap"
)

// 调用方的能力字符串由外部身份服务签发，本核心只做匹配不做管理
const (
	CapabilityRosterEdit     = "roster:edit"
	CapabilityRosterPublish  = "roster:publish"
	CapabilityApproveSwap    = "roster:approve_swap"
	CapabilityApproveAbsence = "absence:approve"
)

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	repository *repository.Repository
	translator ut.Translator
	grid       *grid.Service
	swaps      *swap.Service
	locks      *lock.Manager
	events     event.Publisher

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo *repository.Repository, gridService *grid.Service, swapService *swap.Service, locks *lock.Manager, events event.Publisher) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:   validate,
		config:     cfg,
		repository: repo,
		translator: trans,
		grid:       gridService,
		swaps:      swapService,
		locks:      locks,
		events:     events,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	// 以下 API 都需要外部身份服务签发的令牌
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)

		r.Route("/periods/{scope}", func(r chi.Router) {
			r.Use(h.scopeCtx)
			r.Get("/", h.GetPeriod) // 读取不需要锁
			r.Route("/lock", func(r chi.Router) {
				r.Use(h.RequiredCapability(CapabilityRosterEdit))
				r.Post("/", h.AcquireLock)
				r.Patch("/", h.RenewLock)
				r.Delete("/", h.ReleaseLock)
			})
			r.With(h.RequiredCapability(CapabilityRosterEdit)).Put("/cells", h.ReplaceCells)
			r.With(h.RequiredCapability(CapabilityRosterEdit)).Patch("/cells/{area}/{subArea}/{slot}/{day}", h.UpsertCell)
			r.Post("/status", h.TransitionStatus) // 能力检查依赖目标状态，放在 handler 里做
			r.With(h.RequiredCapability(CapabilityRosterPublish)).Post("/archive", h.ArchivePeriod)
		})

		r.Route("/swap-requests", func(r chi.Router) {
			r.Post("/", h.CreateSwapRequest)
			r.Get("/", h.GetMySwapRequests)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.swapRequestCtx)
				r.Get("/", h.GetSwapRequest)
				r.With(h.RequiredCapability(CapabilityApproveSwap)).Post("/accept", h.AcceptSwapRequest)
				r.With(h.RequiredCapability(CapabilityApproveSwap)).Post("/reject", h.RejectSwapRequest)
				r.Post("/cancel", h.CancelSwapRequest)
			})
		})

		r.Route("/absences", func(r chi.Router) {
			r.Get("/", h.GetAbsences)
			r.With(h.RequiredCapability(CapabilityApproveAbsence)).Post("/{id}/status", h.UpdateAbsenceStatus)
		})

		// 参考数据，由外部子系统维护，这里只读
		r.Get("/employees", h.GetAllEmployees)
		r.Get("/rooms", h.GetAllRooms)
		r.Get("/service-lines", h.GetAllServiceLines)
		r.Get("/role-slots", h.GetAllRoleSlots)
	})
}
