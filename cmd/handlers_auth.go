package main

import (
	"errors"

	"github.com/gin-gonic/gin"

	"notebooker/core"
	"notebooker/models"
)

// handleRegister 注册新用户
func handleRegister(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		user, token, err := app.auth.Register(req.Username, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, core.ErrUsernameTaken) {
				c.JSON(409, models.NewErrorResponse("Username already taken"))
				return
			}
			c.JSON(500, models.NewErrorResponse("Registration failed: "+err.Error()))
			return
		}

		setSessionCookie(c, token)
		c.JSON(201, models.NewSuccessResponse("Registered", models.AuthResponse{
			UserID:       user.ID,
			Username:     user.Username,
			SessionToken: token,
		}))
	}
}

// handleLogin 用户登录
func handleLogin(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.NewErrorResponse("Invalid request: "+err.Error()))
			return
		}

		user, token, err := app.auth.Login(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, core.ErrInvalidCredentials) {
				c.JSON(401, models.NewErrorResponse("Invalid username or password"))
				return
			}
			c.JSON(500, models.NewErrorResponse("Login failed: "+err.Error()))
			return
		}

		setSessionCookie(c, token)
		c.JSON(200, models.NewSuccessResponse("Logged in", models.AuthResponse{
			UserID:       user.ID,
			Username:     user.Username,
			SessionToken: token,
		}))
	}
}

// handleLogout 登出并销毁会话
func handleLogout(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetString("session_token")
		app.auth.Logout(token)
		c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)
		c.JSON(200, models.NewSuccessResponse("Logged out", nil))
	}
}

// handleVerifySession 校验会话有效性
// 走到这里说明中间件已放行，直接回显会话归属
func handleVerifySession(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, models.NewSuccessResponse("Session valid", gin.H{
			"user_id":  c.GetUint("user_id"),
			"username": c.GetString("username"),
		}))
	}
}

// handleCurrentUser 返回当前登录用户信息
func handleCurrentUser(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var user models.User
		if err := app.db.First(&user, userID).Error; err != nil {
			c.JSON(404, models.NewErrorResponse("User not found"))
			return
		}

		c.JSON(200, models.NewSuccessResponse("OK", user))
	}
}

// setSessionCookie HttpOnly 会话 Cookie，有效期与会话一致
func setSessionCookie(c *gin.Context, token string) {
	c.SetCookie(sessionCookieName, token, int(core.DefaultSessionTTL.Seconds()), "/", "", false, true)
}
