package authservice

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"workspaceServer/backend/internal/store"
)

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type registerReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

const (
	accessTTL  = 30 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

type Handler struct {
	users *store.UserStore
}

func NewHandler(users *store.UserStore) *Handler {
	return &Handler{users: users}
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	u := &store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: passwordHash,
	}
	if err := h.users.CreateUser(c.Request.Context(), u); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": u.ID})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	u, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get user failed"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	accessToken, _, err := SignAccessToken(u.ID, u.Email, accessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign access token failed"})
		return
	}
	refreshToken, _, err := SignRefreshToken(u.ID, u.Email, refreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign refresh token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"expiresIn":    int(accessTTL.Seconds()),
		"tokenType":    "Bearer",
		"user": gin.H{
			"id":        u.ID,
			"email":     u.Email,
			"avatarUrl": u.AvatarURL,
		},
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	// 1) 解析 refreshToken；校验 typ == "refresh"
	// 2) 重新签发新的 access
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	claims, err := ParseToken(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if claims.Type != "refresh" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token required"})
		return
	}

	accessToken, _, err := SignAccessToken(claims.UserID, claims.Email, accessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign access token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
		"expiresIn":   int(accessTTL.Seconds()),
		"tokenType":   "Bearer",
		"user": gin.H{
			"email": claims.Email,
		},
	})
}

// Verify 供独立部署的前端/网关确认令牌有效性
func (h *Handler) Verify(c *gin.Context) {
	claims, ok := c.Get("claims")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, claims)
}
