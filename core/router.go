package core

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// NewRouter constructs the Gin engine with routes wired.
// A nil session store disables CSRF checks.
func NewRouter(cfg Config, store sessions.Store, auth *AuthenticationService, resolver *PrincipalResolver, dir IdentityDirectory) *gin.Engine {
	startedAt := time.Now()
	r := gin.New()

	// Global middleware: recovery -> request id -> logging -> origin/CORS -> CSRF -> authentication
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger())
	r.Use(OriginRefererMiddleware(cfg))
	if store != nil && cfg.TokenCookieEnabled {
		r.Use(CSRFMiddleware(cfg, store))
	}
	r.Use(AuthenticationFilter(resolver))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", func(c *gin.Context) {
			var req RegisterRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			token, err := auth.Register(c.Request.Context(), req)
			if err != nil {
				writeAuthError(c, err)
				return
			}
			setTokenCookie(c, cfg, token)
			c.JSON(http.StatusOK, gin.H{"token": token})
		})

		authGroup.POST("/login", func(c *gin.Context) {
			var req LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			token, err := auth.Login(c.Request.Context(), req)
			if err != nil {
				writeAuthError(c, err)
				return
			}
			setTokenCookie(c, cfg, token)
			c.JSON(http.StatusOK, gin.H{"token": token})
		})

		authGroup.POST("/logout", func(c *gin.Context) {
			clearTokenCookie(c, cfg)
			c.Status(http.StatusNoContent)
		})

		user := api.Group("/user", RequireAuthenticated())
		user.GET("/profile", func(c *gin.Context) {
			p, _ := CurrentPrincipal(c)
			c.JSON(http.StatusOK, gin.H{
				"username": p.Identity.Username,
				"email":    p.Identity.Email,
				"role":     p.Identity.Role,
			})
		})

		admin := api.Group("/admin", RequireRole(RoleAdmin))
		admin.GET("/users", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := dir.List(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch users")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		admin.GET("/system/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, CollectSystemStatus(c.Request.Context(), dir, startedAt))
		})
	}

	return r
}

func setTokenCookie(c *gin.Context, cfg Config, token string) {
	if !cfg.TokenCookieEnabled {
		return
	}
	c.SetSameSite(sameSiteFromString(cfg.CookieSameSite))
	c.SetCookie(cookieNameFor(cfg), token, int(cfg.TokenValidity()/time.Second), "/", "", cfg.CookieSecure, true)
}

func clearTokenCookie(c *gin.Context, cfg Config) {
	c.SetSameSite(sameSiteFromString(cfg.CookieSameSite))
	c.SetCookie(cookieNameFor(cfg), "", -1, "/", "", cfg.CookieSecure, true)
}

func cookieNameFor(cfg Config) string {
	return firstNonEmpty(cfg.TokenCookieName, DefaultTokenCookieName)
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
