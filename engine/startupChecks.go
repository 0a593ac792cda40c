package engine

import (
	"fmt"
	"os"
)

// StartupChecks makes sure the directories the importer writes to are usable
func (serverHandler *ServerHandler) StartupChecks() error {
	cfg := serverHandler.ImporterConfig
	if err := directoryChecks("saved", cfg.SavedDir); err != nil {
		return err
	}
	if err := directoryChecks("content", cfg.ContentPath); err != nil {
		return err
	}
	if err := directoryChecks("import", cfg.ImportRoot); err != nil {
		return err
	}
	if cfg.IngressPath != "" {
		if err := directoryChecks("ingress", cfg.IngressPath); err != nil {
			return err
		}
	}
	return nil
}

// directoryChecks ensures a directory exists, creating it when missing
func directoryChecks(kind, dir string) error {
	if dir == "" {
		Logger.Warn("Directory not configured", "kind", kind)
		return nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			Logger.Info("Creating directory", "kind", kind, "path", dir)
			if err := os.MkdirAll(dir, 0755); err != nil {
				Logger.Error("Failed to create directory", "kind", kind, "path", dir, "error", err)
				return err
			}
			return nil
		}
		Logger.Error("Error checking directory", "kind", kind, "path", dir, "error", err)
		return err
	}

	if !info.IsDir() {
		Logger.Error("Path exists but is not a directory", "kind", kind, "path", dir)
		return fmt.Errorf("%s path is not a directory: %s", kind, dir)
	}

	Logger.Debug("Directory exists", "kind", kind, "path", dir)
	return nil
}
