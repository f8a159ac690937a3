package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 72 * time.Hour

type loginRequest struct {
	Key string `json:"key" binding:"required"`
}

// Login exchanges the shared admin key for a short-lived bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Key), []byte(h.adminKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid key"})
		return
	}

	claims := jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(tokenTTL).Unix(),
		"iss":  "unknownchat-admin",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// requireAuth validates the bearer token. Websocket clients may pass the
// token as a query parameter because browsers cannot set headers on the
// upgrade request.
func (h *Handler) requireAuth(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
			return
		}
		tokenString = strings.TrimPrefix(header, "Bearer ")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["role"] != "admin" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}
	c.Next()
}
