package main

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	go_json "github.com/goccy/go-json"

	"github.com/Zachkp/skycode/internal/analytics"
	"github.com/Zachkp/skycode/internal/config"
	"github.com/Zachkp/skycode/internal/content"
	"github.com/Zachkp/skycode/internal/page"
	"github.com/Zachkp/skycode/internal/session"
	"github.com/Zachkp/skycode/internal/xslog"
)

const pageKey = "page"

type server struct {
	cfg       config.Config
	logger    *slog.Logger
	portfolio *content.Portfolio
	about     template.HTML
	pitch     template.HTML
	sessions  *session.MemoryStore[*pageSession]
	analytics *analytics.Store
	admin     *adminAuth
}

// pageSession is one mounted page: its controller plus the per-load
// decorations rendered with it.
type pageSession struct {
	ctrl      *page.Controller
	fragments *fragmentRenderer
	skills    []skillGroupView
	connected atomic.Bool
}

type skillGroupView struct {
	content.SkillGroup
	Bars []content.SkillBar
}

type navView struct {
	PageID   string
	Sections []page.Section
	Active   page.Section
	MenuOpen bool
}

func newServer(cfg config.Config, logger *slog.Logger, portfolio *content.Portfolio, stats *analytics.Store) (*server, error) {
	about, err := content.Markdown(portfolio.About.Bio)
	if err != nil {
		return nil, fmt.Errorf("rendering about: %w", err)
	}
	pitch, err := content.Markdown(portfolio.Contact.Pitch)
	if err != nil {
		return nil, fmt.Errorf("rendering contact pitch: %w", err)
	}

	s := &server{
		cfg:       cfg,
		logger:    logger,
		portfolio: portfolio,
		about:     about,
		pitch:     pitch,
		analytics: stats,
	}
	s.sessions = session.NewMemoryStore[*pageSession](cfg.SessionTTL,
		session.WithEvict(s.evict),
		session.WithKeepAlive(func(ps *pageSession) bool { return ps.connected.Load() }),
	)
	if stats != nil {
		s.admin = newAdminAuth(cfg.Admin, cfg.Mode, logger)
	}
	return s, nil
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(
		gin.CustomRecoveryWithWriter(io.Discard, s.recovery),
		requestLogger(s.logger),
	)
	if s.analytics != nil {
		r.Use(visitorTrackingMiddleware(s.analytics, s.logger))
	}

	r.SetFuncMap(templateFuncs())
	r.LoadHTMLGlob(s.cfg.TemplatesGlob)

	r.Static("/images", s.cfg.ImagesDir)
	r.Static("/static", s.cfg.StaticDir)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Home page route: every load mounts a fresh page session
	r.GET("/", s.handleIndex)

	pages := r.Group("/pages/:id", s.loadPage)
	pages.POST("/nav/:section", s.handleNavigate)
	pages.POST("/menu/toggle", s.handleToggleMenu)
	pages.POST("/scroll", s.handleScroll)
	pages.GET("/state", s.handleState)
	pages.GET("/live", s.handleLive)

	s.setupAdminRoutes(r)
	return r
}

func (s *server) handleIndex(c *gin.Context) {
	ctx := c.Request.Context()
	id := s.sessions.NewID()
	ps := s.mount(id)
	if err := s.sessions.Put(ctx, id, ps); err != nil {
		xslog.FromContext(ctx).ErrorContext(ctx, "failed to store page session", xslog.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	st := ps.ctrl.State()
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":       fmt.Sprintf("%s | %s", s.portfolio.Owner.Name, SiteTagline),
		"description": s.portfolio.Hero.Tagline,
		"pageID":      id,
		"state":       st,
		"nav":         newNavView(id, st),
		"elements":    s.portfolio.Sections(),
		"portfolio":   s.portfolio,
		"about":       s.about,
		"pitch":       s.pitch,
		"skills":      ps.skills,
		"contactForm": ContactForm,
		"footer":      FooterNotice,
		"year":        time.Now().Year(),
	})
}

// mount creates the controller for one page load. Until a live connection
// takes over, scroll requests are collected for the HTMX response.
func (s *server) mount(id string) *pageSession {
	fragments := newFragmentRenderer(s.portfolio.Sections())
	ctrl := page.NewController(
		page.WithID(id),
		page.WithLogger(s.logger.With(xslog.PageID(id))),
		page.WithRenderer(fragments),
	)

	skills := make([]skillGroupView, len(s.portfolio.Skills))
	for i, g := range s.portfolio.Skills {
		skills[i] = skillGroupView{SkillGroup: g, Bars: g.Bars(nil)}
	}

	return &pageSession{ctrl: ctrl, fragments: fragments, skills: skills}
}

// detach hands a page back to its HTMX renderer after its live connection
// ends. The session stays mounted so the browser can keep navigating or
// reconnect.
func (s *server) detach(ctx context.Context, ps *pageSession) {
	id := ps.ctrl.ID()
	ps.ctrl.SetRenderer(ps.fragments)
	if err := ps.ctrl.Detach(); err != nil {
		s.logger.WarnContext(ctx, "failed to detach page controller", xslog.PageID(id), xslog.Error(err))
	}
	// refresh while still kept alive so the TTL counts from the disconnect
	if _, _, err := s.sessions.Get(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh page session", xslog.PageID(id), xslog.Error(err))
	}
	ps.connected.Store(false)
}

func (s *server) evict(id string, ps *pageSession) {
	if err := ps.ctrl.Stop(); err != nil {
		s.logger.Warn("failed to stop expired page controller", xslog.PageID(id), xslog.Error(err))
		return
	}
	s.logger.Debug("page session expired", xslog.PageID(id))
}

// closeSessions stops every remaining controller at shutdown.
func (s *server) closeSessions() {
	s.sessions.Range(func(id string, ps *pageSession) {
		if err := ps.ctrl.Stop(); err != nil {
			s.logger.Warn("failed to stop page controller", xslog.PageID(id), xslog.Error(err))
		}
	})
}

func (s *server) loadPage(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	ps, ok, err := s.sessions.Get(ctx, id)
	if err != nil {
		xslog.FromContext(ctx).ErrorContext(ctx, "failed to load page session", xslog.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load page"})
		return
	}
	if !ok {
		if c.GetHeader("HX-Request") == "true" {
			c.Header("HX-Redirect", reloadTarget(c.Param("section")))
		}
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "page session not found"})
		return
	}
	c.Request = c.Request.WithContext(xslog.WithAttrs(ctx, xslog.PageID(id)))
	c.Set(pageKey, ps)
	c.Next()
}

// reloadTarget is where an HTMX client whose page session is gone should go:
// a fresh page, scrolled to the section it asked for when there is one.
func reloadTarget(section string) string {
	if sec, err := page.ParseSection(section); err == nil {
		return "/#" + sec.String()
	}
	return "/"
}

func pageFrom(c *gin.Context) *pageSession {
	return c.MustGet(pageKey).(*pageSession)
}

func (s *server) handleNavigate(c *gin.Context) {
	ps := pageFrom(c)
	section, err := page.ParseSection(c.Param("section"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ps.ctrl.NavigateTo(section)
	s.recordNavigation(c.Request.Context(), ps.ctrl.ID(), section)

	if target, ok := ps.fragments.take(); ok {
		trigger, err := go_json.Marshal(gin.H{
			"scrollIntoView": gin.H{"section": target, "smooth": true},
		})
		if err == nil {
			c.Header("HX-Trigger", string(trigger))
		}
	}
	c.HTML(http.StatusOK, "nav.html", newNavView(ps.ctrl.ID(), ps.ctrl.State()))
}

func (s *server) handleToggleMenu(c *gin.Context) {
	ps := pageFrom(c)
	ps.ctrl.ToggleMenu()
	c.HTML(http.StatusOK, "nav.html", newNavView(ps.ctrl.ID(), ps.ctrl.State()))
}

type scrollRequest struct {
	Offset *float64 `form:"offset" json:"offset" binding:"required"`
}

func (s *server) handleScroll(c *gin.Context) {
	var req scrollRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset is required"})
		return
	}
	pageFrom(c).ctrl.HandleScroll(*req.Offset)
	c.Status(http.StatusNoContent)
}

func (s *server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, pageFrom(c).ctrl.State())
}

func (s *server) recordNavigation(ctx context.Context, pageID string, section page.Section) {
	if s.analytics == nil {
		return
	}
	if err := s.analytics.RecordNavigation(ctx, pageID, section); err != nil {
		xslog.FromContext(ctx).WarnContext(ctx, "error recording navigation",
			xslog.Section(section.String()), xslog.Error(err))
	}
}

func (s *server) recovery(c *gin.Context, err any) {
	ctx := c.Request.Context()
	xslog.FromContext(ctx).ErrorContext(ctx, "panic recovered",
		xslog.RequestGroup(c.Request, c.ClientIP()),
		xslog.ErrorGroupWithStack(err),
	)
	c.AbortWithStatus(http.StatusInternalServerError)
}

func newNavView(id string, st page.State) navView {
	return navView{
		PageID:   id,
		Sections: page.Sections(),
		Active:   st.ActiveSection,
		MenuOpen: st.MenuOpen,
	}
}
