package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datallboy/tubefetch/internal/api/controllers"
	"github.com/datallboy/tubefetch/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "tubefetch download API", "status": "Running"})
	})
	e.GET("/health", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	downloadCtrl := &controllers.DownloadController{App: app}
	jobsCtrl := &controllers.JobsController{App: app}
	historyCtrl := &controllers.HistoryController{App: app}

	authed := e.Group("", requireUser(app))
	if rpm := app.Config.API.RequestsPerMinute; rpm > 0 {
		authed.Use(NewRateLimiter(rpm).Middleware())
	}

	authed.POST("/download", downloadCtrl.Handle)
	authed.GET("/jobs/:id", jobsCtrl.HandleGet)
	authed.GET("/history", historyCtrl.Handle)
}
