package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/dispatcher"
	"github.com/songquanpeng/smart-router-gateway/internal/httpx"
	"github.com/songquanpeng/smart-router-gateway/internal/legacydb"
	"github.com/songquanpeng/smart-router-gateway/internal/logger"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
	"github.com/songquanpeng/smart-router-gateway/internal/recovery"
	"github.com/songquanpeng/smart-router-gateway/internal/router"
	"github.com/songquanpeng/smart-router-gateway/internal/routing"
	"github.com/songquanpeng/smart-router-gateway/internal/scheduler"
	"github.com/songquanpeng/smart-router-gateway/internal/session"
	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

const sweepPeriod = 60 * time.Second

func main() {
	configPath := os.Getenv("SMART_ROUTER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfgReg, err := config.Load(configPath)
	if err != nil {
		// Logger isn't set up yet; a bad config file is a startup-fatal
		// condition the teacher's own main.go reports the same way, via
		// logger.Logger.Fatal once logging exists. Here it doesn't yet.
		panic(err)
	}

	logger.Setup(cfgReg.ServerConfig().Debug)
	logger.Logger.Info("smart-router-gateway starting")

	if catalogPath := os.Getenv("SMART_ROUTER_MODEL_CATALOG"); catalogPath != "" {
		catalog, err := modelmeta.LoadCatalogFile(catalogPath)
		if err != nil {
			logger.Logger.Fatal("failed to load model catalog", zap.Error(err))
		}
		metaReg := modelmeta.NewRegistry(catalog)
		runGateway(cfgReg, metaReg)
		return
	}

	metaReg := modelmeta.NewRegistry(nil)
	runGateway(cfgReg, metaReg)
}

func runGateway(cfgReg *config.Registry, metaReg *modelmeta.Registry) {
	bl := blacklist.NewManager()
	rt := routing.NewRouter(cfgReg, metaReg, bl)
	sched := scheduler.New()
	pool := httpx.NewPool()
	probes := httpx.NewProbeCache()
	sessions := session.NewManager()

	usageDir := os.Getenv("SMART_ROUTER_USAGE_DIR")
	if usageDir == "" {
		usageDir = "logs"
	}
	tracker, err := usage.NewTracker(usageDir, 30)
	if err != nil {
		logger.Logger.Fatal("failed to open usage tracker", zap.Error(err))
	}

	var legacy *legacydb.Store
	if legacyPath := os.Getenv("SMART_ROUTER_LEGACY_DB"); legacyPath != "" {
		legacy, err = legacydb.Open(legacyPath)
		if err != nil {
			logger.Logger.Fatal("failed to open legacy usage mirror", zap.Error(err))
		}
		defer func() {
			if err := legacy.Close(); err != nil {
				logger.Logger.Error("failed to close legacy usage mirror", zap.Error(err))
			}
		}()
	}

	disp := dispatcher.New(cfgReg, metaReg, rt, bl, sched, pool, probes, tracker)

	if os.Getenv("GIN_MODE") != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.New(router.Deps{
		CfgReg:     cfgReg,
		MetaReg:    metaReg,
		BL:         bl,
		Dispatcher: disp,
		Sessions:   sessions,
		Tracker:    tracker,
		Legacy:     legacy,
		StartedAt:  time.Now(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recoveryLoop := recovery.New(bl, cfgReg, pool)
	go recoveryLoop.Run(ctx)
	go sweepLoop(ctx, rt)

	srvCfg := cfgReg.ServerConfig()
	addr := srvCfg.Host + ":" + portString(srvCfg.Port)
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		logger.Logger.Info("server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Logger.Info("shutting down")

	// Drain order per the shutdown contract: stop accepting ingress, then
	// cancel background tasks (already cancelled via ctx above), then close
	// the upstream connection pool, then flush the session table.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("graceful shutdown failed", zap.Error(err))
	}
	pool.CloseAll()
	sessions.Flush()
	logger.Logger.Info("shutdown complete")
}

func sweepLoop(ctx context.Context, rt *routing.Router) {
	ticker := time.NewTicker(sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.Sweep()
		}
	}
}

func portString(port int) string {
	if port == 0 {
		return "8080"
	}
	return strconv.Itoa(port)
}
