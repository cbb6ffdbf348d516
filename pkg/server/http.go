package server

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Depado/ginprom"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wasender/app/api/routes"
	"github.com/wasender/pkg/config"
	"github.com/wasender/pkg/domains/autoreply"
	"github.com/wasender/pkg/domains/sender"
	"github.com/wasender/pkg/domains/whatsapp"
	"github.com/wasender/pkg/middleware"
	"github.com/wasender/pkg/publisher"
	"github.com/wasender/pkg/utils"

	_ "github.com/wasender/docs"
)

type Deps struct {
	WhatsApp  whatsapp.Service
	AutoReply autoreply.Service
	Sender    sender.Service
	Hub       *publisher.Hub
	Logger    zerolog.Logger
}

// NewHttpServer builds the router and returns a server ready to listen.
func NewHttpServer(cfg *config.Config, d Deps) *http.Server {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	utils.RegisterValidators()

	app := gin.New()
	app.Use(gin.LoggerWithFormatter(func(log gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] - %s \"%s %s %s %d %s\"\n",
			log.TimeStamp.Format("2006-01-02 15:04:05"),
			log.ClientIP,
			log.Method,
			log.Path,
			log.Request.Proto,
			log.StatusCode,
			log.Latency,
		)
	}))
	app.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	app.Use(gin.Recovery())
	app.Use(otelgin.Middleware(cfg.App.Name))
	app.Use(middleware.ClaimIp())
	app.Use(cors.New(corsConfig(cfg.Allows)))

	p := ginprom.New(
		ginprom.Engine(app),
		ginprom.Subsystem("gin"),
		ginprom.Path("/metrics"),
		ginprom.Ignore("/docs/*any"),
	)
	app.Use(p.Instrument())

	routes.HealthRoutes(app.Group("/health"), d.WhatsApp)
	routes.EventRoutes(app.Group("/events"), d.Hub, d.Logger)

	api := app.Group("/api/v1", middleware.RateLimit(cfg.RateLimit))
	routes.WhatsAppRoutes(api.Group("/whatsapp"), d.WhatsApp)
	routes.AutoReplyRoutes(api.Group("/auto-reply"), d.AutoReply, d.WhatsApp)
	routes.SenderRoutes(api.Group("/background-sender"), d.Sender)

	return &http.Server{
		Addr:              net.JoinHostPort(cfg.App.Host, cfg.App.Port),
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func corsConfig(a config.Allows) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Origin", "Accept"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(a.Methods) > 0 {
		c.AllowMethods = a.Methods
	}
	if len(a.Headers) > 0 {
		c.AllowHeaders = a.Headers
	}
	if len(a.Origins) > 0 {
		c.AllowOrigins = a.Origins
	}
	return c
}
