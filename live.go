package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Zachkp/skycode/internal/live"
	"github.com/Zachkp/skycode/internal/page"
	"github.com/Zachkp/skycode/internal/xslog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// trackedPage records navigations made over the live connection.
type trackedPage struct {
	*page.Controller
	record func(page.Section)
}

func (t trackedPage) NavigateTo(section page.Section) {
	t.Controller.NavigateTo(section)
	t.record(section)
}

// handleLive attaches a websocket to a mounted page. The connection is the
// page's renderer and scroll source until it closes; then the page falls back
// to HTMX rendering and accepts a new connection.
func (s *server) handleLive(c *gin.Context) {
	ps := pageFrom(c)
	ctx := c.Request.Context()
	logger := xslog.FromContext(ctx)

	if ps.connected.Load() {
		c.JSON(http.StatusConflict, gin.H{"error": "page already has a live connection"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnContext(ctx, "websocket upgrade failed", xslog.Error(err))
		return
	}
	defer conn.Close()

	client := live.NewClient(conn, logger)
	if err := ps.ctrl.Start(client); err != nil {
		if !errors.Is(err, page.ErrAlreadyStarted) && !errors.Is(err, page.ErrStopped) {
			logger.ErrorContext(ctx, "failed to start page controller", xslog.Error(err))
		}
		_ = client.Send(live.Outbound{Type: live.TypeError, Message: err.Error()})
		return
	}
	ps.connected.Store(true)
	defer s.detach(ctx, ps)

	ps.ctrl.SetRenderer(client)
	cancel := ps.ctrl.Subscribe(func(st page.State) {
		if err := client.SendState(st); err != nil {
			logger.DebugContext(ctx, "failed to push state", xslog.Error(err))
		}
	})
	defer cancel()

	if err := client.SendState(ps.ctrl.State()); err != nil {
		logger.WarnContext(ctx, "failed to send initial state", xslog.Error(err))
		return
	}

	logger.DebugContext(ctx, "live connection established")
	handler := trackedPage{
		Controller: ps.ctrl,
		record: func(section page.Section) {
			s.recordNavigation(ctx, ps.ctrl.ID(), section)
		},
	}
	if err := client.Serve(ctx, handler); err != nil && ctx.Err() == nil {
		logger.WarnContext(ctx, "live connection ended", xslog.Error(err))
		return
	}
	logger.DebugContext(ctx, "live connection closed")
}
