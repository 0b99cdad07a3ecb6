// File: internal/infra/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rollingpi/internal/config"
	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/infra/logging"
	"rollingpi/internal/usecase"
)

// Server exposes the payment relay and session-link endpoints.
type Server struct {
	payUC   usecase.PaymentUseCase
	linkUC  usecase.SessionLinkUseCase
	userUC  usecase.UserUseCase
	priceUC usecase.PricingUseCase
	auth    *AuthManager
	limiter *IPLimiter
	cfg     config.ServerConfig
	log     *zerolog.Logger

	httpSrv *http.Server
}

func NewServer(
	payUC usecase.PaymentUseCase,
	linkUC usecase.SessionLinkUseCase,
	userUC usecase.UserUseCase,
	priceUC usecase.PricingUseCase,
	auth *AuthManager,
	cfg config.ServerConfig,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "APIServer").Logger()
	return &Server{
		payUC:   payUC,
		linkUC:  linkUC,
		userUC:  userUC,
		priceUC: priceUC,
		auth:    auth,
		limiter: NewIPLimiter(cfg.PublicRateLimit, cfg.PublicBurst, &l),
		cfg:     cfg,
		log:     &l,
	}
}

// Routes builds the full handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		Recover(s.log),
		TraceID(),
		RequestLog(s.log),
		CORS(s.cfg.AllowedOrigins),
	)
	if s.cfg.RequestTimeout > 0 {
		r.Use(Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	base := s.cfg.BasePath
	if base == "" {
		base = "/"
	}
	r.Route(base, func(r chi.Router) {
		// public
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/auth/pi-login", s.handlePiLogin)
			r.Get("/payments/slots", s.handleSlots)
			r.Get("/price", s.handlePrice)
			r.Post("/session-links", s.handleCreateLink)
			r.Get("/session-links/status/{code}", s.handleLinkStatus)
		})

		// bearer
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser)
			r.Get("/auth/me", s.handleMe)
			r.Post("/payments/create", s.handleCreatePayment)
			r.Post("/payments/approve", s.handleApprove)
			r.Post("/payments/complete", s.handleComplete)
			r.Get("/payments/by-payment-id/{paymentId}", s.handleByPaymentID)
			r.Get("/payments/by-article/{articleId}", s.handleByArticle)
			r.Post("/session-links/sync", s.handleSyncLink)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/payments/activate", s.handleActivate)
				r.Delete("/payments/cancel-subscription", s.handleCancel)
			})
		})
	})
	return r
}

// Start serves on the configured port until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.limiter.Run(ctx, 5*time.Minute)
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Str("base_path", s.cfg.BasePath).Msg("api listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// --- auth ---

func (s *Server) handlePiLogin(w http.ResponseWriter, r *http.Request) {
	var req piLoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.userUC.PiLogin(r.Context(), usecase.PiLoginInput{
		AccessToken: req.AccessToken,
		UID:         req.UID,
		Username:    req.Username,
		Sandbox:     req.Sandbox,
	})
	if err != nil {
		s.fail(w, r, "pi login", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := ClaimsFrom(r.Context())
	u, err := s.userUC.FindByID(r.Context(), c.UserID)
	if err != nil {
		s.fail(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       u.ID,
		"piId":     u.PiID,
		"username": u.Username,
		"role":     u.Role,
	})
}

// --- payments ---

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c := ClaimsFrom(r.Context())
	ctx := logging.WithPaymentID(r.Context(), req.PaymentID)
	out, err := s.payUC.Create(ctx, usecase.CreatePaymentInput{
		PaymentID:    req.PaymentID,
		PlanType:     req.PlanType,
		Username:     c.Username,
		ArticleID:    req.ArticleID,
		CategorySlug: req.CategorySlug,
		Sandbox:      req.Sandbox,
	})
	if err != nil {
		s.fail(w, r, "create payment", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approvePaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx := logging.WithPaymentID(r.Context(), req.PaymentID)
	if err := s.payUC.Approve(ctx, req.PaymentID, req.PlanType); err != nil {
		s.fail(w, r, "approve payment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": true})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completePaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx := logging.WithPaymentID(r.Context(), req.PaymentID)
	out, err := s.payUC.Complete(ctx, adapter.CompleteRequest{
		PaymentID: req.PaymentID,
		Txid:      req.Txid,
		ArticleID: req.ArticleID,
	})
	if err != nil {
		s.fail(w, r, "complete payment", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleByPaymentID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentId")
	owner := ""
	if c := ClaimsFrom(r.Context()); !c.IsAdmin() {
		owner = c.Username
	}
	view, err := s.payUC.ByPaymentID(logging.WithPaymentID(r.Context(), id), id, owner)
	if err != nil {
		s.fail(w, r, "payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	plan, err := model.ParsePlanType(q.Get("promoteType"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: promoteType", err))
		return
	}
	out, err := s.payUC.Slots(r.Context(), plan, strings.TrimSpace(q.Get("categorySlug")))
	if err != nil {
		s.fail(w, r, "slots", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleByArticle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "articleId"))
	if err != nil {
		writeError(w, err)
		return
	}
	plans, err := s.payUC.ActivePlans(r.Context(), id)
	if err != nil {
		s.fail(w, r, "active plans", err)
		return
	}
	if plans == nil {
		plans = []model.ActivePlan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	username := req.Username
	if username == "" {
		username = ClaimsFrom(r.Context()).Username
	}
	out, err := s.payUC.Activate(r.Context(), adapter.ActivateRequest{
		ArticleID: req.ArticleID,
		PlanType:  req.PlanType,
		Username:  username,
	})
	if err != nil {
		s.fail(w, r, "activate plan", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := parseID(q.Get("articleId"))
	if err != nil {
		writeError(w, err)
		return
	}
	plan, err := model.ParsePlanType(q.Get("planType"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: planType", err))
		return
	}
	if err := s.payUC.CancelPlan(r.Context(), id, plan); err != nil {
		s.fail(w, r, "cancel plan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	p, err := s.priceUC.Prices(r.Context())
	if err != nil {
		s.fail(w, r, "price", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- session links ---

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	code, err := s.linkUC.Create(r.Context())
	if err != nil {
		s.fail(w, r, "create link", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

func (s *Server) handleSyncLink(w http.ResponseWriter, r *http.Request) {
	var req syncSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c := ClaimsFrom(r.Context())
	ctx := logging.WithCode(r.Context(), req.Code)
	if err := s.linkUC.Sync(ctx, c.UserID, req.Code); err != nil {
		s.fail(w, r, "sync link", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"synced": true})
}

// handleLinkStatus answers 204 while pending, 200 with the session once,
// and 410 after that.
func (s *Server) handleLinkStatus(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	sess, err := s.linkUC.Status(logging.WithCode(r.Context(), code), code)
	if err != nil {
		s.fail(w, r, "link status", err)
		return
	}
	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// fail logs unexpected errors before writing the response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("op", op).Msg("request failed")
	}
	writeError(w, err)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id", domain.ErrInvalidArgument)
	}
	return id, nil
}
