package server

import (
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/aiworker/internal/runtime"
	"github.com/mohammad-safakhou/aiworker/internal/store"
	"github.com/mohammad-safakhou/aiworker/repository/redis_repository"
)

type AuthHandler struct {
	Store       *store.Store
	Secret      []byte
	TokenTTL    time.Duration
	Resets      *redis_repository.ResetTokens
	FrontendURL string
	Env         string
	Logger      *log.Logger
}

func (a *AuthHandler) Register(g *echo.Group) {
	g.POST("/signup", a.signup)
	g.POST("/login", a.login)
	g.POST("/logout", a.logout)
	g.POST("/forgot-password", a.forgotPassword)
	g.POST("/reset-password", a.resetPassword)
	g.GET("/me", a.me, runtime.EchoAuthMiddleware(a.Secret))
	g.GET("/admin-only", a.adminOnly, runtime.EchoAuthMiddleware(a.Secret), runtime.RequireRole("admin"))
	g.GET("/analyst-only", a.analystOnly, runtime.EchoAuthMiddleware(a.Secret), runtime.RequireRole("analyst"))
}

// Signup
//
//	@Summary		User signup
//	@Description	Create a new user account
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AuthSignupRequest	true	"Signup payload"
//	@Success		201		{string}	string				"Created"
//	@Failure		400		{object}	HTTPError
//	@Failure		409		{object}	HTTPError
//	@Failure		500		{object}	HTTPError
//	@Router			/auth/signup [post]
func (a *AuthHandler) signup(c echo.Context) error {
	var req AuthSignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "email required, password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, err := a.Store.CreateUser(c.Request().Context(), req.Email, string(hash), "user"); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return echo.NewHTTPError(http.StatusConflict, "email already exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

// Login
//
//	@Summary		Login
//	@Description	Returns JWT in cookie and body; supports Bearer flows
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AuthLoginRequest	true	"Login payload"
//	@Success		200		{object}	TokenResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		401		{object}	HTTPError
//	@Failure		500		{object}	HTTPError
//	@Router			/auth/login [post]
func (a *AuthHandler) login(c echo.Context) error {
	var req AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "password too short")
	}
	_, hash, role, err := a.Store.GetUserByEmail(c.Request().Context(), req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	signed, err := runtime.SignJWT(req.Email, role, a.Secret, a.TokenTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = signed
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	if a.Env == "prod" {
		cookie.Secure = true
	}
	c.SetCookie(cookie)
	// also return token for Bearer flows
	c.Response().Header().Set("Authorization", "Bearer "+signed)
	return c.JSON(http.StatusOK, TokenResponse{Token: signed})
}

// Logout
//
//	@Summary	Logout
//	@Tags		auth
//	@Produce	json
//	@Success	200	{string}	string	"OK"
//	@Router		/auth/logout [post]
func (a *AuthHandler) logout(c echo.Context) error {
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.NoContent(http.StatusOK)
}

// ForgotPassword issues a single-use reset token. The response is identical
// whether or not the email exists so the endpoint cannot be used to probe
// accounts; the reset link is only logged (mail delivery is out of scope).
func (a *AuthHandler) forgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email required")
	}
	if _, _, _, err := a.Store.GetUserByEmail(c.Request().Context(), req.Email); err == nil {
		token, err := a.Resets.Issue(c.Request().Context(), req.Email)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		a.Logger.Printf("password reset link for %s: %s/reset-password?token=%s", req.Email, a.FrontendURL, token)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *AuthHandler) resetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Token == "" || len(req.NewPassword) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "token required, password must be at least 8 characters")
	}
	email, err := a.Resets.Redeem(c.Request().Context(), req.Token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := a.Store.UpdateUserPassword(c.Request().Context(), email, string(hash)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "password updated"})
}

func (a *AuthHandler) me(c echo.Context) error {
	email, _ := c.Get("email").(string)
	role, _ := c.Get("role").(string)
	return c.JSON(http.StatusOK, map[string]string{"email": email, "role": role})
}

func (a *AuthHandler) adminOnly(c echo.Context) error {
	email, _ := c.Get("email").(string)
	return c.JSON(http.StatusOK, map[string]string{"message": "Welcome Admin " + email})
}

func (a *AuthHandler) analystOnly(c echo.Context) error {
	email, _ := c.Get("email").(string)
	return c.JSON(http.StatusOK, map[string]string{"message": "Welcome Analyst " + email})
}
