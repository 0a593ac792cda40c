package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/drummonds/pdfimporter/engine/assets"
)

// Folders created inside the ingress path for handled files
const (
	ingressDoneFolder   = "done"
	ingressFailedFolder = "failed"
)

// InitializeSchedules starts the watch folder and conversion retention jobs.
// It returns nil when neither is configured.
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	c := cron.New()
	jobs := 0
	skipRunning := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)) //ensure we don't kick off another if old one is still running

	if ingressPath := serverHandler.ImporterConfig.IngressPath; ingressPath != "" {
		interval := serverHandler.ImporterConfig.IngressInterval
		if interval <= 0 {
			interval = 10
		}
		if _, err := c.AddJob(fmt.Sprintf("@every %dm", interval), skipRunning.Then(cron.FuncJob(serverHandler.ingressJobFunc))); err != nil {
			Logger.Error("Unable to schedule ingress job", "error", err)
		} else {
			Logger.Info("Adding Ingress Job scheduler", "interval_minutes", interval)
			// Run ingress job immediately at startup in a goroutine
			Logger.Info("Running ingress job at startup")
			go serverHandler.ingressJobFunc()
			jobs++
		}
	} else {
		Logger.Info("No ingress path configured, watch folder disabled")
	}

	if serverHandler.ImporterConfig.RetentionDays > 0 && serverHandler.DB != nil {
		if _, err := c.AddJob("@daily", skipRunning.Then(cron.FuncJob(serverHandler.retentionJobFunc))); err != nil {
			Logger.Error("Unable to schedule conversion retention job", "error", err)
		} else {
			Logger.Info("Adding conversion retention job", "days", serverHandler.ImporterConfig.RetentionDays)
			jobs++
		}
	}

	if jobs == 0 {
		return nil
	}
	c.Start()
	return c
}

// retentionJobFunc deletes finished conversions older than the retention period
func (serverHandler *ServerHandler) retentionJobFunc() {
	days := serverHandler.ImporterConfig.RetentionDays
	serverHandler.pruneConversions(time.Duration(days) * 24 * time.Hour)
}

func (serverHandler *ServerHandler) pruneConversions(olderThan time.Duration) int {
	deleted, err := serverHandler.DB.DeleteOldConversions(olderThan)
	if err != nil {
		Logger.Error("Unable to prune old conversions", "error", err)
		return 0
	}
	if deleted > 0 {
		Logger.Info("Pruned old conversions", "count", deleted, "older_than", olderThan)
	}
	return deleted
}

// ingressJobFunc imports every PDF found in the ingress folder as persisted textures
func (serverHandler *ServerHandler) ingressJobFunc() {
	// Add panic recovery to prevent entire application crash
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in ingress job", "panic", r)
		}
	}()

	ingressPath := serverHandler.ImporterConfig.IngressPath
	Logger.Info("Starting Ingress Job on folder", "path", ingressPath)
	for _, filePath := range findIngressPDFs(ingressPath) {
		serverHandler.ingressDocument(filePath)
	}
}

func (serverHandler *ServerHandler) ingressDocument(filePath string) {
	_, err := serverHandler.Importer.ConvertPdfToPdfAsset(context.Background(), ConversionRequest{
		InputPath: filePath,
		DPI:       serverHandler.ImporterConfig.DefaultDPI,
		Mode:      assets.ModePersisted,
	})
	if err != nil {
		Logger.Error("Ingress conversion failed", "file", filePath, "error", err)
		moveIngressFile(filePath, filepath.Join(serverHandler.ImporterConfig.IngressPath, ingressFailedFolder))
		return
	}
	if serverHandler.ImporterConfig.IngressDelete {
		if err := os.Remove(filePath); err != nil {
			Logger.Warn("Unable to delete ingested file", "file", filePath, "error", err)
		}
		return
	}
	moveIngressFile(filePath, filepath.Join(serverHandler.ImporterConfig.IngressPath, ingressDoneFolder))
}

// findIngressPDFs walks the ingress folder, skipping the done and failed folders
func findIngressPDFs(ingressPath string) []string {
	var pdfs []string
	err := filepath.WalkDir(ingressPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			Logger.Warn("Unable to read ingress entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != ingressPath && (d.Name() == ingressDoneFolder || d.Name() == ingressFailedFolder) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			pdfs = append(pdfs, path)
		}
		return nil
	})
	if err != nil {
		Logger.Error("Error reading files in from ingress", "error", err)
	}
	return pdfs
}

func moveIngressFile(filePath, folder string) {
	if err := os.MkdirAll(folder, os.ModePerm); err != nil {
		Logger.Error("Unable to create ingress folder", "folder", folder, "error", err)
		return
	}
	target := filepath.Join(folder, filepath.Base(filePath))
	if err := os.Rename(filePath, target); err != nil {
		Logger.Error("Unable to move ingress file", "file", filePath, "target", target, "error", err)
	}
}
