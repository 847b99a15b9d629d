package httpapi

import (
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type handler struct {
	auth   Authenticator
	logger *zap.Logger
	cookie cookieConfig
}

// login accepts an OAuth2 password form (username, password) or a JSON
// {email, password} body.
// POST /api/v1/auth/login
func (h *handler) login(c *gin.Context) {
	var in goSession.LoginInput
	switch c.ContentType() {
	case gin.MIMEPOSTForm, gin.MIMEMultipartPOSTForm:
		in.Email = c.PostForm("username")
		in.Password = c.PostForm("password")
	default:
		if err := c.ShouldBindJSON(&in); err != nil {
			h.fail(c, errors.Join(goSession.ErrInvalidInput, err))
			return
		}
	}

	resp, err := h.auth.Login(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.cookie.set(c, resp.RefreshToken, resp.RefreshMaxAge)
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/auth/refresh
func (h *handler) refresh(c *gin.Context) {
	resp, err := h.auth.Refresh(c.Request.Context(), refreshToken(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.cookie.set(c, resp.RefreshToken, resp.RefreshMaxAge)
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/auth/logout
func (h *handler) logout(c *gin.Context) {
	ack, err := h.auth.Logout(c.Request.Context(), refreshToken(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.cookie.clear(c)
	c.JSON(http.StatusOK, ack)
}

// register accepts {name, email, password}. Extra fields such as company are ignored.
// POST /api/v1/auth/register
func (h *handler) register(c *gin.Context) {
	var in goSession.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, errors.Join(goSession.ErrInvalidInput, err))
		return
	}

	ack, err := h.auth.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ack)
}

// GET /api/v1/auth/me
func (h *handler) me(c *gin.Context) {
	id, ok := middleware.IdentityFromContext(c.Request.Context())
	if !ok {
		h.fail(c, goSession.ErrTokenInvalid)
		return
	}
	c.JSON(http.StatusOK, id)
}

func (h *handler) fail(c *gin.Context, err error) {
	status, msg := goSession.PublicError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	abortWithError(c, status, msg)
}

func abortWithError(c *gin.Context, status int, msg string) {
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, goSession.Ack{Success: false, Message: msg})
}
