package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInvalidToken = errors.New("invalid or expired token")

// AuthUser represents the user info returned from auth service
type AuthUser struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the user carries role in either the single or list form.
func (u *AuthUser) HasRole(role string) bool {
	if strings.EqualFold(u.Role, role) {
		return true
	}
	return slices.ContainsFunc(u.Roles, func(r string) bool { return strings.EqualFold(r, role) })
}

// AuthClient handles communication with the auth service
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAuthClient creates a new auth client
func NewAuthClient(baseURL string) *AuthClient {
	return &AuthClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// GetMe retrieves user info from auth service using the token
func (c *AuthClient) GetMe(ctx context.Context, token string) (*AuthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth service error: %d - %s", resp.StatusCode, string(body))
	}

	var user AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &user, nil
}

// AdminAuthMiddleware admits only callers whose token the auth service accepts
// and who carry role. It sets "user_id", "username" and "email" in the gin context.
// When allowUnauthenticatedFallback is true (local development), requests without
// a usable token proceed as user_id="dev-admin".
func AdminAuthMiddleware(authClient *AuthClient, role string, logger *zap.Logger, allowUnauthenticatedFallback bool) gin.HandlerFunc {
	fallback := func(c *gin.Context) bool {
		if !allowUnauthenticatedFallback {
			return false
		}
		c.Set("user_id", "dev-admin")
		c.Next()
		return true
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if fallback(c) {
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			if fallback(c) {
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		user, err := authClient.GetMe(c.Request.Context(), token)
		if err != nil {
			if logger != nil {
				logger.Debug("Auth validation failed", zap.Error(err))
			}
			if fallback(c) {
				return
			}
			if errors.Is(err, errInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication unavailable"})
			return
		}

		if !user.HasRole(role) {
			if logger != nil {
				logger.Info("Admin access denied", zap.String("user_id", user.ID))
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}

		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
		c.Set("email", user.Email)
		c.Next()
	}
}
