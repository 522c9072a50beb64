package handlers

import "github.com/labstack/echo/v4"

// RegisterAPI mounts the dashboard API on g. Guards are applied by the caller.
func (h *Handler) RegisterAPI(g *echo.Group) {
	g.POST("/auth/callback", h.AuthCallback)
	g.GET("/me", h.GetMe)
	g.POST("/keys", h.CreateKey)
	g.GET("/keys", h.ListKeys)
	g.DELETE("/keys/:id", h.DeleteKey)
	g.GET("/keys/:id/stats", h.KeyStats)
	g.GET("/analytics/:id", h.Analytics)
}

func (p *Pages) Register(e *echo.Echo) {
	e.GET("/", p.Page("index"))
	for _, name := range []string{"docs", "pricing", "auth", "dashboard", "playground"} {
		e.GET("/"+name, p.Page(name))
	}
}
