package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pdfimporter/config"
	database "github.com/drummonds/pdfimporter/database"
	engine "github.com/drummonds/pdfimporter/engine"
	"github.com/drummonds/pdfimporter/engine/assets"
	"github.com/drummonds/pdfimporter/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	assets.Logger = Logger
	pdfrenderer.Logger = Logger
}

func main() {
	importerConfig, logger := config.SetupImporter()
	injectGlobals(logger) //inject the logger into all of the packages

	Logger.Info("Setting up database", "type", importerConfig.DatabaseType)
	db, err := database.NewRepository(importerConfig)
	if err != nil {
		Logger.Error("Unable to set up database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	Logger.Info("Database setup complete")

	backend, err := engine.NewBackend(importerConfig)
	if err != nil {
		Logger.Error("Unable to create converter", "backend", importerConfig.Backend, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	materializer := assets.NewMaterializer(importerConfig.ContentPath, assets.NewImageDecoder(), db)
	importer := engine.NewImporter(importerConfig, backend.Converter, backend.Extractor, materializer, db)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	// API endpoints return JSON errors
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		if code == http.StatusNotFound && strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	serverHandler := engine.ServerHandler{Importer: importer, DB: db, Echo: e, ImporterConfig: importerConfig}
	if err := serverHandler.StartupChecks(); err != nil {
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}
	if scheduler := serverHandler.InitializeSchedules(); scheduler != nil {
		defer scheduler.Stop()
	}
	serverHandler.RegisterRoutes()

	if importerConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}
	Logger.Info("Starting HTTP server", "converter", backend.Converter.Name())

	// Try to start server with automatic port increment if port is in use
	maxRetries := 5
	startPort := importerConfig.ListenAddrPort
	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", importerConfig.ListenAddrIP, importerConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		startErr := e.Start(addr)
		if startErr == nil || startErr == http.ErrServerClosed {
			return
		}
		if !isAddressInUse(startErr) {
			Logger.Error("Failed to start server", "error", startErr)
			return
		}

		Logger.Warn("Port already in use, trying next port",
			"port", importerConfig.ListenAddrPort,
			"attempt", attempt+1,
			"max_attempts", maxRetries)
		portNum := 0
		fmt.Sscanf(importerConfig.ListenAddrPort, "%d", &portNum)
		importerConfig.ListenAddrPort = fmt.Sprintf("%d", portNum+1)
	}
	Logger.Error("Failed to find available port after maximum retries",
		"start_port", startPort,
		"end_port", importerConfig.ListenAddrPort,
		"max_retries", maxRetries)
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "address already in use")
}
