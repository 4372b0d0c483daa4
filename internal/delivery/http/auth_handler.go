package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"leverledger/internal/delivery/http/dto"
	"leverledger/internal/middleware"
	"leverledger/internal/service"
)

// requestTimeout bounds the work of a single API call
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	auth          *service.AuthService
	jwt           *middleware.JWTManager
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth *service.AuthService, jwt *middleware.JWTManager, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		jwt:           jwt,
		secureCookies: secureCookies,
	}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	if req.Username == "" || req.Password == "" {
		return BadRequestResponse(c, "Username and password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if statusFor(err) == http.StatusForbidden {
			return UnauthorizedResponse(c, err.Error())
		}
		return InternalServerErrorResponse(c, "Failed to log in", err)
	}

	token, err := h.jwt.Generate(user.ID, user.Role)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to generate token", err)
	}

	// Set HTTP-only cookie
	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.jwt.TTL().Seconds()),
	})

	return SuccessResponse(c, dto.LoginResponse{
		Token: token,
		User:  dto.NewUserOutput(user),
	})
}

// Logout handles user logout
// POST /api/auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1, // Delete cookie
	})
	return SuccessMessageResponse(c, "Logged out", nil)
}

// Register handles user registration
// POST /api/auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.auth.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return DomainErrorResponse(c, "Registration failed", err)
	}

	return CreatedResponse(c, dto.NewUserOutput(user))
}
