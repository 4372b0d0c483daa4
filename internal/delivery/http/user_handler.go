package http

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"leverledger/internal/delivery/http/dto"
	"leverledger/internal/domain"
	"leverledger/internal/middleware"
	"leverledger/internal/service"
)

// UserHandler handles trader requests
type UserHandler struct {
	userRepo  domain.UserRepository
	positions *service.PositionService
	requests  *service.RequestService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userRepo domain.UserRepository, positions *service.PositionService, requests *service.RequestService) *UserHandler {
	return &UserHandler{
		userRepo:  userRepo,
		positions: positions,
		requests:  requests,
	}
}

// GetMe returns current user details
// GET /api/user/me
func (h *UserHandler) GetMe(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.userRepo.GetByID(ctx, userID)
	if err != nil {
		return DomainErrorResponse(c, "Failed to get user details", err)
	}

	return SuccessResponse(c, dto.NewUserOutput(user))
}

// GetPositions returns the user's positions with live figures
// GET /api/user/positions
func (h *UserHandler) GetPositions(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	views, err := h.positions.ListForUser(ctx, userID)
	if err != nil {
		return DomainErrorResponse(c, "Failed to get positions", err)
	}

	return SuccessResponse(c, map[string]interface{}{
		"positions": views,
		"count":     len(views),
	})
}

// OpenPosition opens a leveraged position
// POST /api/user/positions
func (h *UserHandler) OpenPosition(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	var req dto.OpenPositionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	position, err := h.positions.Open(ctx, service.OpenPositionInput{
		UserID:     userID,
		Symbol:     req.Symbol,
		Margin:     req.Margin,
		Leverage:   req.Leverage,
		Direction:  req.Direction,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
	})
	if err != nil {
		return DomainErrorResponse(c, "Failed to open position", err)
	}

	return CreatedResponse(c, position)
}

// ClosePosition closes a position at the current price
// POST /api/user/positions/:id/close
func (h *UserHandler) ClosePosition(c echo.Context) error {
	actor, err := middleware.GetIdentity(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid position ID")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	profitLoss, err := h.positions.CloseForUser(ctx, actor, positionID)
	if err != nil {
		return DomainErrorResponse(c, "Failed to close position", err)
	}

	return SuccessMessageResponse(c, "Position closed", map[string]interface{}{
		"position_id": positionID,
		"profit_loss": profitLoss,
	})
}

// RequestDeposit queues a deposit for admin review
// POST /api/user/deposits
func (h *UserHandler) RequestDeposit(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	var req dto.DepositRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	deposit, err := h.requests.RequestDeposit(ctx, userID, req.Amount, req.TxRef)
	if err != nil {
		return DomainErrorResponse(c, "Failed to request deposit", err)
	}

	return CreatedResponse(c, deposit)
}

// RequestWithdrawal queues a withdrawal and reserves its amount
// POST /api/user/withdrawals
func (h *UserHandler) RequestWithdrawal(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	var req dto.WithdrawalRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	withdrawal, err := h.requests.RequestWithdrawal(ctx, userID, req.Amount, req.Wallet)
	if err != nil {
		return DomainErrorResponse(c, "Failed to request withdrawal", err)
	}

	return CreatedResponse(c, withdrawal)
}

// ListDeposits returns the user's deposits
// GET /api/user/deposits
func (h *UserHandler) ListDeposits(c echo.Context) error {
	return h.listRequests(c, domain.KindDeposit)
}

// ListWithdrawals returns the user's withdrawals
// GET /api/user/withdrawals
func (h *UserHandler) ListWithdrawals(c echo.Context) error {
	return h.listRequests(c, domain.KindWithdrawal)
}

func (h *UserHandler) listRequests(c echo.Context, kind domain.RequestKind) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	reqs, err := h.requests.ListForUser(ctx, userID, kind)
	if err != nil {
		return DomainErrorResponse(c, "Failed to get requests", err)
	}

	return SuccessResponse(c, map[string]interface{}{
		"requests": reqs,
		"count":    len(reqs),
	})
}
