// admin.go - privacy-conscious admin dashboard over the analytics store
package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Zachkp/skycode/internal/analytics"
	"github.com/Zachkp/skycode/internal/config"
	"github.com/Zachkp/skycode/internal/xslog"
)

const (
	adminCookie       = "admin_token"
	adminCookieMaxAge = 3600 * 24
	devAdminPassword  = "admin123"
)

type adminAuth struct {
	username string
	password string
	token    string
}

// newAdminAuth returns nil when no password is configured outside debug mode,
// which leaves the admin area disabled.
func newAdminAuth(cfg config.Admin, mode string, logger *slog.Logger) *adminAuth {
	password := cfg.Password
	if password == "" {
		if mode != config.ModeDebug {
			logger.Warn("admin area disabled: set ADMIN_PASSWORD to enable it")
			return nil
		}
		logger.Warn("using default admin password, set ADMIN_PASSWORD environment variable")
		password = devAdminPassword
	}

	token, err := generateAdminToken()
	if err != nil {
		logger.Error("admin area disabled", xslog.Error(err))
		return nil
	}
	logger.Info("admin access available", xslog.Path("/admin/login"))
	return &adminAuth{username: cfg.Username, password: password, token: token}
}

func generateAdminToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating admin token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (a *adminAuth) check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	return userOK && passOK
}

// middleware sends requests without a valid admin cookie to the login page.
func (a *adminAuth) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

var untrackedPrefixes = []string{
	"/static/", "/images/", "/admin", "/favicon", "/privacy", "/pages/", "/healthz",
}

// visitorTrackingMiddleware records successful page views with a hashed IP.
// Requests carrying Do Not Track are never recorded.
func visitorTrackingMiddleware(store *analytics.Store, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.Request.URL.Path
		if c.Request.Method != http.MethodGet || c.Writer.Status() != http.StatusOK {
			return
		}
		for _, p := range untrackedPrefixes {
			if strings.HasPrefix(path, p) {
				return
			}
		}
		if c.GetHeader("DNT") == "1" {
			return
		}

		ctx := c.Request.Context()
		if err := store.RecordVisit(ctx, c.ClientIP(), c.GetHeader("User-Agent"), path); err != nil {
			logger.WarnContext(ctx, "error recording visitor", xslog.Error(err))
		}
	}
}

func (s *server) setupAdminRoutes(r *gin.Engine) {
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{
			"title":     "Privacy Policy",
			"policy":    PrivacyPolicy,
			"retention": s.cfg.Analytics.Retention.String(),
			"tracking":  s.analytics != nil,
		})
	})

	if s.analytics == nil || s.admin == nil {
		return
	}

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{
			"title": "Admin Login",
		})
	})

	r.POST("/admin/login", func(c *gin.Context) {
		ctx := c.Request.Context()
		client := xslog.HashedIP(s.analytics.HashIP(c.ClientIP()))
		if !s.admin.check(c.PostForm("username"), c.PostForm("password")) {
			xslog.FromContext(ctx).WarnContext(ctx, "failed admin login attempt", client)
			c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
				"title": "Admin Login",
				"error": "Invalid credentials",
			})
			return
		}

		c.SetCookie(adminCookie, s.admin.token, adminCookieMaxAge, "/admin", "", s.cfg.Mode == config.ModeRelease, true)
		xslog.FromContext(ctx).InfoContext(ctx, "admin login successful", client)
		c.Redirect(http.StatusFound, "/admin/dashboard")
	})

	r.GET("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", s.cfg.Mode == config.ModeRelease, true)
		c.Redirect(http.StatusFound, "/admin/login")
	})

	admin := r.Group("/admin", s.admin.middleware())

	admin.GET("/dashboard", func(c *gin.Context) {
		stats, err := s.loadStats(c.Request.Context())
		if err != nil {
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"title": "Admin Error",
				"error": "Failed to load statistics",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
			"title":    "Dashboard",
			"stats":    stats,
			"sessions": s.sessions.Len(),
		})
	})

	admin.GET("/api/stats", func(c *gin.Context) {
		stats, err := s.loadStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	admin.GET("/export/stats", func(c *gin.Context) {
		ctx := c.Request.Context()
		stats, err := s.loadStats(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=skycode-stats.json")
		xslog.FromContext(ctx).InfoContext(ctx, "admin stats exported",
			xslog.HashedIP(s.analytics.HashIP(c.ClientIP())))
		c.JSON(http.StatusOK, stats)
	})

	admin.POST("/privacy/cleanup", func(c *gin.Context) {
		ctx := c.Request.Context()
		n, err := s.analytics.Cleanup(ctx, s.cfg.Analytics.Retention)
		if err != nil {
			xslog.FromContext(ctx).ErrorContext(ctx, "error cleaning up old visitor data", xslog.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Privacy cleanup complete", "removed": n})
	})
}

func (s *server) loadStats(ctx context.Context) (*analytics.Stats, error) {
	stats, err := s.analytics.Stats(ctx)
	if err != nil {
		xslog.FromContext(ctx).ErrorContext(ctx, "error loading admin stats", xslog.Error(err))
		return nil, err
	}
	return stats, nil
}
