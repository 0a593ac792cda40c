package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Supported converter backends
const (
	BackendPDFium      = "pdfium"
	BackendGhostscript = "ghostscript"
	BackendMuPDF       = "mupdf"
)

// Ghostscript loading strategies
const (
	GhostscriptModeLibrary    = "library"
	GhostscriptModeExecutable = "executable"
)

// ImporterConfig contains all of the importer settings
type ImporterConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseDbname   string
	DatabaseSslmode  string
	SavedDir         string // absolute path, the working directory is created below it
	ContentPath      string // absolute path where persisted texture packages are written
	IngressPath      string
	IngressInterval  int
	IngressDelete    bool
	ImportRoot       string // absolute path, API requests may only read PDFs below it
	RetentionDays    int    // finished conversions older than this are pruned, 0 keeps them
	DefaultDPI       int
	Backend          string
	GhostscriptConfig
}

// GhostscriptConfig stores the interpreter specific settings
type GhostscriptConfig struct {
	Mode           string
	LibraryPaths   []string
	ExecutablePath string
	Threads        int
	MaxBitmap      int
	ArgEncoding    string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// SetupImporter loads configuration and returns ImporterConfig and Logger
func SetupImporter() (ImporterConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	importerConfig := LoadImporterConfig(logger)

	fmt.Println("\n========================================")
	fmt.Println("   pdfimporter - PDF to texture importer")
	fmt.Println("========================================")
	fmt.Printf("Converter backend: %s\n", importerConfig.Backend)
	fmt.Printf("Working directory root: %s\n", importerConfig.SavedDir)
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "pdfimporter.log"))

	return importerConfig, logger
}

// LoadImporterConfig reads the importer settings from the environment
func LoadImporterConfig(logger *slog.Logger) ImporterConfig {
	importerConfig := ImporterConfig{}

	// Server configuration
	importerConfig.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	importerConfig.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	importerConfig.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	importerConfig.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	importerConfig.DatabasePort = getEnv("DATABASE_PORT", "5432")
	importerConfig.DatabaseUser = getEnv("DATABASE_USER", "pdfimporter")
	importerConfig.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	importerConfig.DatabaseDbname = getEnv("DATABASE_NAME", "databases/pdfimporter.sqlite")
	importerConfig.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")
	logger.Info("Database configuration loaded", "type", importerConfig.DatabaseType)

	importerConfig.SavedDir = absPath(logger, getEnv("SAVED_DIR", "Saved"))
	importerConfig.ContentPath = absPath(logger, getEnv("CONTENT_PATH", "Content"))

	ingressDir := getEnv("INGRESS_PATH", "")
	if ingressDir != "" {
		importerConfig.IngressPath = absPath(logger, ingressDir)
	}
	importerConfig.IngressInterval = getEnvInt("INGRESS_INTERVAL", 10)
	importerConfig.IngressDelete = getEnvBool("INGRESS_DELETE", true)
	importerConfig.ImportRoot = absPath(logger, getEnv("IMPORT_ROOT", "Import"))
	importerConfig.RetentionDays = getEnvInt("CONVERSION_RETENTION_DAYS", 30)
	if importerConfig.RetentionDays < 0 {
		importerConfig.RetentionDays = 0
	}

	importerConfig.DefaultDPI = getEnvInt("DEFAULT_DPI", 150)
	if importerConfig.DefaultDPI <= 0 {
		logger.Warn("Invalid DEFAULT_DPI, falling back to 150", "dpi", importerConfig.DefaultDPI)
		importerConfig.DefaultDPI = 150
	}

	importerConfig.Backend = strings.ToLower(getEnv("CONVERTER_BACKEND", BackendPDFium))
	switch importerConfig.Backend {
	case BackendPDFium, BackendGhostscript, BackendMuPDF:
	default:
		logger.Warn("Unknown converter backend, using pdfium", "backend", importerConfig.Backend)
		importerConfig.Backend = BackendPDFium
	}

	importerConfig.GhostscriptConfig = loadGhostscriptConfig(logger)
	return importerConfig
}

func loadGhostscriptConfig(logger *slog.Logger) GhostscriptConfig {
	gsConfig := GhostscriptConfig{}
	gsConfig.Mode = strings.ToLower(getEnv("GHOSTSCRIPT_MODE", GhostscriptModeLibrary))
	if gsConfig.Mode != GhostscriptModeLibrary && gsConfig.Mode != GhostscriptModeExecutable {
		logger.Warn("Unknown ghostscript mode, using library", "mode", gsConfig.Mode)
		gsConfig.Mode = GhostscriptModeLibrary
	}

	if libraryPath := getEnv("GHOSTSCRIPT_LIBRARY", ""); libraryPath != "" {
		gsConfig.LibraryPaths = []string{libraryPath}
	} else {
		gsConfig.LibraryPaths = defaultGhostscriptLibraries()
	}
	gsConfig.ExecutablePath = getEnv("GHOSTSCRIPT_PATH", "/usr/bin/gs")
	gsConfig.Threads = getEnvInt("GHOSTSCRIPT_THREADS", 4)
	gsConfig.MaxBitmap = getEnvInt("GHOSTSCRIPT_MAX_BITMAP", 500000000)
	gsConfig.ArgEncoding = strings.ToLower(getEnv("GHOSTSCRIPT_ARG_ENCODING", "utf-8"))

	if gsConfig.Mode == GhostscriptModeExecutable {
		if err := checkExecutables(gsConfig.ExecutablePath, logger); err != nil {
			logger.Warn("Ghostscript executable not found, ghostscript backend will fail", "path", gsConfig.ExecutablePath)
		}
	}
	return gsConfig
}

// defaultGhostscriptLibraries lists the shared library names tried in order
func defaultGhostscriptLibraries() []string {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "386" {
			return []string{"gsdll32.dll"}
		}
		return []string{"gsdll64.dll"}
	case "darwin":
		return []string{"libgs.dylib", "/opt/homebrew/lib/libgs.dylib", "/usr/local/lib/libgs.dylib"}
	default:
		return []string{"libgs.so", "libgs.so.10", "libgs.so.9"}
	}
}

func absPath(logger *slog.Logger, path string) string {
	abs, err := filepath.Abs(filepath.ToSlash(path))
	if err != nil {
		logger.Error("Failed creating absolute path", "path", path, "error", err)
		return path
	}
	return abs
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "stdout")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdfimporter.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// checkExecutables verifies that an executable exists at the given path
func checkExecutables(executablePath string, logger *slog.Logger) error {
	info, err := os.Stat(executablePath)
	if err != nil {
		logger.Error("Cannot find executable at location specified", "path", executablePath)
		return err
	}
	if info.IsDir() {
		logger.Error("Executable path is a directory", "path", executablePath)
		return fmt.Errorf("executable path is a directory: %s", executablePath)
	}
	logger.Debug("Executable found", "path", executablePath)
	return nil
}
