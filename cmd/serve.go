package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-course-purchases/app/controller"
	purchasegrpc "github.com/vibast-solutions/ms-go-course-purchases/app/grpc"
	"github.com/vibast-solutions/ms-go-course-purchases/app/metrics"
	"github.com/vibast-solutions/ms-go-course-purchases/app/provider"
	"github.com/vibast-solutions/ms-go-course-purchases/app/repository"
	"github.com/vibast-solutions/ms-go-course-purchases/app/service"
	"github.com/vibast-solutions/ms-go-course-purchases/app/types"
	"github.com/vibast-solutions/ms-go-course-purchases/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP, gRPC and metrics servers",
	Long:  "Start HTTP (Echo), gRPC and Prometheus metrics servers for the course purchases service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, purchaseService, cleanup := mustCreatePurchaseService()
	defer cleanup()

	purchaseController := controller.NewPurchaseController(purchaseService)
	grpcPurchaseServer := purchasegrpc.NewServer(purchaseService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(purchaseController, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, lis := setupGRPCServer(cfg, grpcPurchaseServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)
	metricsSrv := setupMetricsServer(cfg)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	go func() {
		logrus.WithField("addr", metricsSrv.Addr).Info("Starting metrics server")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Metrics server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Metrics shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	purchaseController *controller.PurchaseController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(requireRequestID())
	e.Use(internalAuthMiddleware.RequireInternalAccess(appServiceName))

	registerRoutes(e, purchaseController)

	return e
}

func registerRoutes(e *echo.Echo, purchaseController *controller.PurchaseController) {
	e.GET("/health", purchaseController.Health)

	purchases := e.Group("/purchases")
	purchases.POST("/webhook", purchaseController.HandleWebhook)
	purchases.GET("/courses/:courseId/detail-with-status", purchaseController.GetPurchaseStatus)
	purchases.POST("/checkout", purchaseController.StartCheckout, requireUserID())
	purchases.POST("/courses/:courseId/payment-success", purchaseController.ConfirmPayment, requireUserID())
	purchases.GET("", purchaseController.ListPurchasedCourses, requireUserID())
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Message: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func requireUserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if strings.TrimSpace(ctx.Request().Header.Get(types.HeaderUserID)) == "" {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Message: "Unauthorized"})
			}
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	purchaseServer *purchasegrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			purchasegrpc.RecoveryInterceptor(),
			purchasegrpc.RequestIDInterceptor(),
			purchasegrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	purchasegrpc.RegisterPurchasesServiceServer(grpcSrv, purchaseServer)

	return grpcSrv, lis
}

func setupMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Metrics.Host, cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func mustCreatePurchaseService() (*config.Config, *service.PurchaseService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	stripeProvider := provider.NewStripeProvider(provider.StripeConfig{
		SecretKey:                 cfg.Stripe.SecretKey,
		WebhookSecret:             cfg.Stripe.WebhookSecret,
		APIBaseURL:                cfg.Stripe.APIBaseURL,
		SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Stripe.HTTPTimeout,
		RetryAttempts:             cfg.Stripe.RetryAttempts,
	})

	purchaseService := service.NewPurchaseService(
		repository.NewCourseRepository(db),
		repository.NewCoursePurchaseRepository(db),
		repository.NewEnrollmentRepository(db),
		repository.NewCourseProgressRepository(db),
		repository.NewPurchaseEventRepository(db),
		repository.NewWebhookEventRepository(db),
		stripeProvider,
		cfg.Purchases,
		metrics.Default(),
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, purchaseService, cleanup
}
