package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/casereview/pkg/activity"
	"github.com/synaptica-ai/casereview/pkg/apiclient"
	"github.com/synaptica-ai/casereview/pkg/checklist"
	"github.com/synaptica-ai/casereview/pkg/common/config"
	"github.com/synaptica-ai/casereview/pkg/common/database"
	"github.com/synaptica-ai/casereview/pkg/common/kafka"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/gateway/middleware"
	"github.com/synaptica-ai/casereview/pkg/gateway/routes"
	"github.com/synaptica-ai/casereview/pkg/observability/metrics"
	"github.com/synaptica-ai/casereview/pkg/session"
	"github.com/synaptica-ai/casereview/pkg/summary"
	"github.com/synaptica-ai/casereview/pkg/upload"
)

func main() {
	logger.Init("dashboard")
	cfg := config.Load()

	defs, err := checklist.LoadDefinitions(cfg.ChecklistConfig)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load checklist definitions")
	}

	// The API client clears the session on a refused token, and the session
	// manager talks to the backend through the client.
	var sessions *session.Manager
	api, err := apiclient.New(cfg.APIBaseURL, cfg.APIRequestTimeout,
		apiclient.OnInvalidCredentials(func(ctx context.Context) {
			middleware.ClearOnInvalidCredentials(sessions)(ctx)
		}))
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid API base URL")
	}
	store := session.NewRedisStore(database.GetRedis(cfg), "casereview:session:")
	defer database.CloseRedis()
	sessions = session.NewManager(store, session.NewClientBackend(api), cfg.SessionFallbackTTL)

	var presigner summary.Presigner
	if cfg.PDFS3Region != "" {
		client, err := summary.NewS3Presigner(context.Background(), cfg.PDFS3Region)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to configure S3 presigning")
		}
		presigner = client
	}

	recorder := activity.NewRecorder(nil)
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.ActivityTopic)
		defer producer.Close()
		recorder = activity.NewRecorder(producer)
	} else {
		logger.Log.Warn("KAFKA_BROKERS not set, activity events are only logged")
	}

	dashboard := routes.NewDashboard(
		sessions,
		api,
		defs,
		upload.NewValidator(cfg.UploadMaxBytes),
		summary.NewPDFResolver(presigner, cfg.PDFPresignTTL, cfg.FileMaxBytes),
		recorder,
		routes.Options{
			CookieName:        cfg.SessionCookieName,
			CookieSecure:      cfg.SessionCookieSecure,
			UploadConcurrency: cfg.UploadConcurrency,
			FileMaxBytes:      cfg.FileMaxBytes,
			FeedbackLogOnly:   cfg.FeedbackLogOnly,
		},
	)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.RateLimit(float64(cfg.RateLimitRPS), cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody, "/upload"))
	router.Use(middleware.Sessions(sessions, cfg.SessionCookieName, cfg.SessionCookieSecure))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	dashboard.Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":    cfg.ServerHost,
			"port":    cfg.ServerPort,
			"backend": api.BaseURL(),
		}).Info("Dashboard started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down dashboard...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Dashboard stopped")
}
