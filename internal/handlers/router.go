package handlers

import (
	"net/http"

	"copytrade/internal/config"
	"copytrade/internal/db"
	"copytrade/internal/logger"
	"copytrade/internal/middleware"
	"copytrade/internal/models"
	"copytrade/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps collects what the HTTP layer talks to.
type Deps struct {
	TxRunner   db.TxRunner
	Users      UserStore
	Admin      AdminStore
	Audit      AuditStore
	Mentors    MentorStore
	Stocks     StockStore
	Bindings   BindingStore
	Recharges  RechargeStore
	Withdraws  WithdrawStore
	Channels   ChannelStore
	Credits    CreditStore
	Accounts   AccountService
	Settlement SettlementService
	CopyTrade  CopyTradeService
	Funds      FundsService
	Referral   ReferralService
	Hub        *websocket.Hub
}

type Handler struct {
	cfg        config.Config
	txRunner   db.TxRunner
	users      UserStore
	admin      AdminStore
	audit      AuditStore
	mentors    MentorStore
	stocks     StockStore
	bindings   BindingStore
	recharges  RechargeStore
	withdraws  WithdrawStore
	channels   ChannelStore
	credits    CreditStore
	accounts   AccountService
	settlement SettlementService
	copytrade  CopyTradeService
	funds      FundsService
	referral   ReferralService
	hub        *websocket.Hub
}

func New(cfg config.Config, deps Deps) *Handler {
	return &Handler{
		cfg:        cfg,
		txRunner:   deps.TxRunner,
		users:      deps.Users,
		admin:      deps.Admin,
		audit:      deps.Audit,
		mentors:    deps.Mentors,
		stocks:     deps.Stocks,
		bindings:   deps.Bindings,
		recharges:  deps.Recharges,
		withdraws:  deps.Withdraws,
		channels:   deps.Channels,
		credits:    deps.Credits,
		accounts:   deps.Accounts,
		settlement: deps.Settlement,
		copytrade:  deps.CopyTrade,
		funds:      deps.Funds,
		referral:   deps.Referral,
		hub:        deps.Hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authed := middleware.Auth(h.cfg.JWTSecret)
	router.Route("/auth", func(r chi.Router) {
		limit, err := middleware.RateLimit(h.cfg.AuthRateLimit, true)
		if err != nil {
			logger.Log.WithError(err).Warn("invalid AUTH_RATE_LIMIT, auth routes are not rate limited")
		} else {
			r.Use(limit)
		}
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authed).Get("/me", h.Me)
		r.With(authed).Post("/logout", h.Logout)
	})

	router.Group(func(r chi.Router) {
		r.Use(authed)
		r.Get("/account/balance", h.Balance)
		r.Put("/account/wallet", h.SetWallet)
		r.Get("/channels", h.ListActiveChannels)
		r.Post("/recharges", h.SubmitRecharge)
		r.Get("/recharges", h.ListMyRecharges)
		r.Post("/withdraws", h.SubmitWithdraw)
		r.Get("/withdraws", h.ListMyWithdraws)
		r.Get("/mentors", h.ListMentors)
		r.Post("/copytrade", h.Follow)
		r.Get("/copytrade/active", h.ActiveOrders)
		r.Get("/copytrade/history", h.OrderHistory)
		r.Post("/copytrade/{id}/cancel", h.CancelOrder)
		r.Get("/invite/stats", h.InviteStats)
	})
	router.Get("/ws", h.WS)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed)
		role := func(name string) func(http.Handler) http.Handler {
			return middleware.RequireAdmin(h.admin, name)
		}

		r.With(role("")).Get("/me", h.AdminMe)
		r.With(role("")).Post("/promote", h.PromoteAdmin)
		r.With(role("")).Post("/roles/grant", h.GrantRole)
		r.With(role(models.RoleViewUsers)).Get("/users", h.AdminListUsers)
		r.With(role(models.RoleViewAudit)).Get("/audit", h.ListAuditLogs)

		r.With(role(models.RoleManageMentors)).Get("/mentors", h.ListMentors)
		r.With(role(models.RoleManageMentors)).Post("/mentors", h.CreateMentor)
		r.With(role(models.RoleManageMentors)).Put("/mentors/{id}", h.UpdateMentor)
		r.With(role(models.RoleManageMentors)).Delete("/mentors/{id}", h.DeleteMentor)

		r.With(role(models.RoleManageChannels)).Get("/channels", h.ListChannels)
		r.With(role(models.RoleManageChannels)).Post("/channels", h.CreateChannel)
		r.With(role(models.RoleManageChannels)).Put("/channels/{id}", h.UpdateChannel)
		r.With(role(models.RoleManageChannels)).Delete("/channels/{id}", h.DeleteChannel)

		r.With(role(models.RoleManageStocks)).Get("/stocks", h.ListStocks)
		r.With(role(models.RoleManageStocks)).Post("/stocks", h.CreateStock)
		r.With(role(models.RoleManageStocks)).Put("/stocks/{id}", h.UpdateStock)
		r.With(role(models.RoleManageStocks)).Delete("/stocks/{id}", h.DeleteStock)
		r.With(role(models.RoleManageStocks)).Post("/stocks/{id}/publish", h.PublishStock)
		r.With(role(models.RoleSettle)).Get("/stocks/{id}/preview", h.PreviewSettlement)
		r.With(role(models.RoleSettle)).Post("/stocks/{id}/settle", h.SettleStock)
		r.With(role(models.RoleSettle)).Post("/stocks/{id}/resume", h.ResumeSettlement)
		r.With(role(models.RoleSettle)).Post("/stocks/{id}/users/{userID}/retry", h.RetrySettlementUser)
		r.With(role(models.RoleSettle)).Get("/stocks/{id}/credits", h.ListCredits)

		r.With(role(models.RoleReviewCopyTrades)).Get("/copytrades", h.AdminListCopyTrades)
		r.With(role(models.RoleReviewCopyTrades)).Post("/copytrades/{id}/approve", h.ApproveCopyTrade)
		r.With(role(models.RoleReviewCopyTrades)).Post("/copytrades/{id}/reject", h.RejectCopyTrade)

		r.With(role(models.RoleReviewFunds)).Get("/recharges", h.AdminListRecharges)
		r.With(role(models.RoleReviewFunds)).Post("/recharges/{id}/approve", h.ApproveRecharge)
		r.With(role(models.RoleReviewFunds)).Post("/recharges/{id}/reject", h.RejectRecharge)
		r.With(role(models.RoleReviewFunds)).Get("/withdraws", h.AdminListWithdraws)
		r.With(role(models.RoleReviewFunds)).Post("/withdraws/{id}/approve", h.ApproveWithdraw)
		r.With(role(models.RoleReviewFunds)).Post("/withdraws/{id}/reject", h.RejectWithdraw)
	})

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
