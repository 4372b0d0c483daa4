package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"leverledger/internal/delivery/http/dto"
	"leverledger/internal/domain"
	"leverledger/internal/middleware"
	"leverledger/internal/service"
)

// Bounds of a temporary price override, in minutes
const (
	MinOverrideMinutes = 1
	MaxOverrideMinutes = 60
)

// AdminHandler handles admin-related requests
type AdminHandler struct {
	admin     *service.AdminService
	requests  *service.RequestService
	prices    *service.PriceService
	positions *service.PositionService
	analytics *service.AnalyticsService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	admin *service.AdminService,
	requests *service.RequestService,
	prices *service.PriceService,
	positions *service.PositionService,
	analytics *service.AnalyticsService,
) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		requests:  requests,
		prices:    prices,
		positions: positions,
		analytics: analytics,
	}
}

// adminContext resolves the caller and the :id path parameter. Its errors
// are rendered by HTTPErrorHandler.
func adminContext(c echo.Context) (domain.Identity, uuid.UUID, error) {
	actor, err := middleware.GetIdentity(c)
	if err != nil {
		return domain.Identity{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	if c.Param("id") == "" {
		return actor, uuid.Nil, nil
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return actor, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid ID")
	}
	return actor, id, nil
}

// GetDashboard returns the platform overview
// GET /api/admin/dashboard
func (h *AdminHandler) GetDashboard(c echo.Context) error {
	actor, _, err := adminContext(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	dashboard, err := h.admin.Dashboard(ctx, actor)
	if err != nil {
		return DomainErrorResponse(c, "Failed to build dashboard", err)
	}
	return SuccessResponse(c, dashboard)
}

// GetUser returns one account with its history
// GET /api/admin/users/:id
func (h *AdminHandler) GetUser(c echo.Context) error {
	actor, userID, err := adminContext(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	detail, err := h.admin.UserDetail(ctx, actor, userID)
	if err != nil {
		return DomainErrorResponse(c, "Failed to get user", err)
	}
	return SuccessResponse(c, detail)
}

// UpdateUser edits profile fields and balance
// PUT /api/admin/users/:id
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	actor, userID, err := adminContext(c)
	if err != nil {
		return err
	}

	var req dto.UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.admin.UpdateUser(ctx, actor, userID, service.UpdateUserInput{
		Name:    req.Name,
		Email:   req.Email,
		Balance: req.Balance,
	})
	if err != nil {
		return DomainErrorResponse(c, "Failed to update user", err)
	}
	return SuccessMessageResponse(c, "User updated", dto.NewUserOutput(user))
}

// BanUser deactivates an account
// POST /api/admin/users/:id/ban
func (h *AdminHandler) BanUser(c echo.Context) error {
	actor, userID, err := adminContext(c)
	if err != nil {
		return err
	}

	var req dto.ReasonRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.admin.BanUser(ctx, actor, userID, req.Reason)
	if err != nil {
		return DomainErrorResponse(c, "Failed to ban user", err)
	}
	return SuccessMessageResponse(c, "User banned", dto.NewUserOutput(user))
}

// UnbanUser reactivates an account
// POST /api/admin/users/:id/unban
func (h *AdminHandler) UnbanUser(c echo.Context) error {
	actor, userID, err := adminContext(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.admin.UnbanUser(ctx, actor, userID)
	if err != nil {
		return DomainErrorResponse(c, "Failed to unban user", err)
	}
	return SuccessMessageResponse(c, "User unbanned", dto.NewUserOutput(user))
}

// GetPendingRequests lists both funding queues
// GET /api/admin/requests
func (h *AdminHandler) GetPendingRequests(c echo.Context) error {
	actor, _, err := adminContext(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	deposits, err := h.requests.ListPending(ctx, actor, domain.KindDeposit)
	if err != nil {
		return DomainErrorResponse(c, "Failed to get deposits", err)
	}
	withdrawals, err := h.requests.ListPending(ctx, actor, domain.KindWithdrawal)
	if err != nil {
		return DomainErrorResponse(c, "Failed to get withdrawals", err)
	}

	return SuccessResponse(c, dto.PendingRequestsOutput{
		Deposits:    deposits,
		Withdrawals: withdrawals,
	})
}

type decision func(ctx context.Context, actor domain.Identity, id uuid.UUID, reason string) (*domain.Request, error)

// decideRequest runs one queue decision for the request in the path
func (h *AdminHandler) decideRequest(c echo.Context, message string, decide decision) error {
	actor, id, err := adminContext(c)
	if err != nil {
		return err
	}

	var req dto.ReasonRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	decided, err := decide(ctx, actor, id, req.Reason)
	if err != nil {
		return DomainErrorResponse(c, "Failed to decide request", err)
	}
	return SuccessMessageResponse(c, message, decided)
}

// ApproveDeposit credits a pending deposit
// POST /api/admin/deposits/:id/approve
func (h *AdminHandler) ApproveDeposit(c echo.Context) error {
	return h.decideRequest(c, "Deposit approved", func(ctx context.Context, actor domain.Identity, id uuid.UUID, _ string) (*domain.Request, error) {
		return h.requests.ApproveDeposit(ctx, actor, id)
	})
}

// RejectDeposit rejects a pending deposit
// POST /api/admin/deposits/:id/reject
func (h *AdminHandler) RejectDeposit(c echo.Context) error {
	return h.decideRequest(c, "Deposit rejected", h.requests.RejectDeposit)
}

// ApproveWithdrawal approves a pending withdrawal
// POST /api/admin/withdrawals/:id/approve
func (h *AdminHandler) ApproveWithdrawal(c echo.Context) error {
	return h.decideRequest(c, "Withdrawal approved", func(ctx context.Context, actor domain.Identity, id uuid.UUID, _ string) (*domain.Request, error) {
		return h.requests.ApproveWithdrawal(ctx, actor, id)
	})
}

// RejectWithdrawal rejects a pending withdrawal and refunds it
// POST /api/admin/withdrawals/:id/reject
func (h *AdminHandler) RejectWithdrawal(c echo.Context) error {
	return h.decideRequest(c, "Withdrawal rejected", h.requests.RejectWithdrawal)
}

// SetPrice sets a price permanently or, with duration_minutes, temporarily
// POST /api/admin/prices
func (h *AdminHandler) SetPrice(c echo.Context) error {
	if _, _, err := adminContext(c); err != nil {
		return err
	}

	var req dto.SetPriceRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var err error
	switch {
	case req.DurationMinutes == 0:
		err = h.prices.SetPermanent(ctx, req.Symbol, req.Price)
	case req.DurationMinutes < MinOverrideMinutes || req.DurationMinutes > MaxOverrideMinutes:
		return BadRequestResponse(c, "Duration must be between 1 and 60 minutes")
	default:
		err = h.prices.SetTemporary(ctx, req.Symbol, req.Price, time.Duration(req.DurationMinutes)*time.Minute)
	}
	if err != nil {
		return DomainErrorResponse(c, "Failed to set price", err)
	}

	return SuccessMessageResponse(c, "Price updated", h.prices.List(ctx))
}

// GetPositions returns every position with the aggregate analysis
// GET /api/admin/positions
func (h *AdminHandler) GetPositions(c echo.Context) error {
	if _, _, err := adminContext(c); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	positions, err := h.positions.ListAll(ctx)
	if err != nil {
		return DomainErrorResponse(c, "Failed to get positions", err)
	}
	analysis, err := h.analytics.PositionAnalysis(ctx)
	if err != nil {
		return DomainErrorResponse(c, "Failed to analyse positions", err)
	}

	return SuccessResponse(c, map[string]interface{}{
		"positions": positions,
		"analysis":  analysis,
	})
}
