package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/assessment-archive/api/swagger"
	"github.com/noah-isme/assessment-archive/internal/handler"
	"github.com/noah-isme/assessment-archive/internal/middleware"
	"github.com/noah-isme/assessment-archive/internal/models"
	"github.com/noah-isme/assessment-archive/pkg/config"
	"github.com/noah-isme/assessment-archive/pkg/logger"
	corsmiddleware "github.com/noah-isme/assessment-archive/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/assessment-archive/pkg/middleware/requestid"
)

// Router builds the HTTP API.
func (a *App) Router() *gin.Engine {
	if a.Cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	events := handler.NewEventHandler(a.Services.Observer, validate, a.Log.Named("http"))
	archives := handler.NewArchiveHandler(a.Services.Policy, a.Services.Observer, a.Services.History, a.Repos.LMS, validate, a.Log.Named("http"))
	bundles := handler.NewBundleHandler(a.Services.Bundles)
	reports := handler.NewReportHandler(a.Services.Coverage)

	checks := map[string]handler.Pinger{
		"postgres": handler.PingFunc(a.DB.PingContext),
	}
	if a.Redis != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() })
	}
	if a.Storage != nil {
		checks["archive_directory"] = directoryCheck(a.Storage.Base())
	}
	metrics := handler.NewMetricsHandler(a.Metrics, checks, a.Log.Named("http"))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Log))
	r.Use(corsmiddleware.New(a.Cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Ready)
	r.GET("/metrics", metrics.Prometheus)
	if a.Cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.Cfg.APIPrefix)
	api.GET("/bundles/download", bundles.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.Services.Tokens))

	secured.POST("/events", middleware.RequireRoles(models.RoleService, models.RoleAdmin), events.Receive)

	admin := secured.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/activities/:id/archiving", archives.GetArchiving)
	admin.PUT("/activities/:id/archiving", archives.UpdateArchiving)
	admin.DELETE("/activities/:id/archiving", archives.ResetArchiving)
	admin.GET("/activities/:id/history", archives.ActivityHistory)
	admin.GET("/history/never-archived", archives.NeverArchived)
	admin.GET("/courses/:id/bundles", bundles.CourseBundles)
	admin.GET("/reports/coverage", reports.Coverage)

	return r
}

func directoryCheck(dir string) handler.PingFunc {
	return func(context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}
}
