package engine

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfimporter/config"
	"github.com/drummonds/pdfimporter/database"
	"github.com/drummonds/pdfimporter/engine/assets"
	"github.com/drummonds/pdfimporter/engine/pdfrenderer"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	Importer       *Importer
	DB             database.Repository
	Echo           *echo.Echo
	ImporterConfig config.ImporterConfig
}

// convertRequest is the body of POST /api/convert
type convertRequest struct {
	Path      string `json:"path"`
	DPI       int    `json:"dpi"`
	FirstPage int    `json:"firstPage"`
	LastPage  int    `json:"lastPage"`
	Persist   bool   `json:"persist"`
	Mode      string `json:"mode"`
}

// pageSummary describes one texture without its pixels
type pageSummary struct {
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Transient   bool   `json:"transient"`
	PackagePath string `json:"packagePath,omitempty"`
	AssetID     string `json:"assetId,omitempty"`
}

type convertResponse struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	PageRange pdfrenderer.PageRange `json:"pageRange"`
	DPI       int                   `json:"dpi"`
	Pages     []pageSummary         `json:"pages"`
}

// RegisterRoutes adds the API routes to the echo instance
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo
	e.GET("/api/health", serverHandler.GetHealth)
	e.POST("/api/convert", serverHandler.ConvertDocument)
	e.POST("/api/extract-text", serverHandler.ExtractText)
	e.GET("/api/assets", serverHandler.GetTextureAssets)
	e.GET("/api/assets/pdf", serverHandler.GetPdfAssets)
	e.GET("/api/conversions", serverHandler.GetRecentConversions)
	e.GET("/api/conversions/:id", serverHandler.GetConversion)
}

// GetHealth reports the converter in use and the library state
func (serverHandler *ServerHandler) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"converter": serverHandler.Importer.Converter().Name(),
		"pdfium":    pdfrenderer.PDFiumInitialized(),
	})
}

// ConvertDocument converts a PDF on the server file system
func (serverHandler *ServerHandler) ConvertDocument(c echo.Context) error {
	var body convertRequest
	if err := c.Bind(&body); err != nil || body.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "A JSON body with a path is required",
		})
	}

	mode, err := assets.ParseMode(body.Mode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	if body.Persist {
		mode = assets.ModePersisted
	}
	inputPath, err := serverHandler.importPath(body.Path)
	if err != nil {
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error": err.Error(),
		})
	}
	asset, err := serverHandler.Importer.ConvertPdfToPdfAsset(c.Request().Context(), ConversionRequest{
		InputPath: inputPath,
		DPI:       body.DPI,
		FirstPage: body.FirstPage,
		LastPage:  body.LastPage,
		Mode:      mode,
	})
	if err != nil {
		return c.JSON(statusForError(err), map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := convertResponse{
		ID:        asset.ID.String(),
		Name:      asset.Name,
		PageRange: asset.PageRange,
		DPI:       asset.DPI,
		Pages:     make([]pageSummary, 0, len(asset.Pages)),
	}
	for _, page := range asset.Pages {
		response.Pages = append(response.Pages, pageSummary{
			Name:        page.Name,
			Width:       page.Width,
			Height:      page.Height,
			Transient:   page.Transient,
			PackagePath: page.PackagePath,
			AssetID:     page.AssetID,
		})
	}
	return c.JSON(http.StatusOK, response)
}

// ExtractText returns the text of every page of a PDF on the server file system
func (serverHandler *ServerHandler) ExtractText(c echo.Context) error {
	var body struct {
		Path string `json:"path"`
	}
	if err := c.Bind(&body); err != nil || body.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "A JSON body with a path is required",
		})
	}

	inputPath, err := serverHandler.importPath(body.Path)
	if err != nil {
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error": err.Error(),
		})
	}
	pages, err := serverHandler.Importer.ExtractText(c.Request().Context(), inputPath)
	if err != nil {
		return c.JSON(statusForError(err), map[string]interface{}{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pages": pages,
	})
}

// GetTextureAssets lists registered textures, optionally filtered by package
func (serverHandler *ServerHandler) GetTextureAssets(c echo.Context) error {
	var (
		textures []database.TextureAsset
		err      error
	)
	if packagePath := c.QueryParam("package"); packagePath != "" {
		textures, err = serverHandler.DB.GetTextureAssetsByPackage(packagePath)
	} else {
		textures, err = serverHandler.DB.GetAllTextureAssets()
	}
	if err != nil {
		Logger.Error("Failed to get texture assets", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve texture assets",
		})
	}
	if textures == nil {
		textures = []database.TextureAsset{}
	}
	return c.JSON(http.StatusOK, textures)
}

// GetPdfAssets lists persisted pdf assets
func (serverHandler *ServerHandler) GetPdfAssets(c echo.Context) error {
	records, err := serverHandler.DB.GetAllPdfAssets()
	if err != nil {
		Logger.Error("Failed to get pdf assets", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve pdf assets",
		})
	}
	if records == nil {
		records = []database.PdfAssetRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// GetRecentConversions retrieves recent conversions with pagination,
// or only the pending and running ones with ?active=true
func (serverHandler *ServerHandler) GetRecentConversions(c echo.Context) error {
	if active, _ := strconv.ParseBool(c.QueryParam("active")); active {
		conversions, err := serverHandler.DB.GetActiveConversions()
		if err != nil {
			Logger.Error("Failed to get active conversions", "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"error": "Failed to retrieve active conversions",
			})
		}
		if conversions == nil {
			conversions = []database.Conversion{}
		}
		return c.JSON(http.StatusOK, conversions)
	}

	limit := 20
	offset := 0

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	conversions, err := serverHandler.DB.GetRecentConversions(limit, offset)
	if err != nil {
		Logger.Error("Failed to get recent conversions", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve conversions",
		})
	}
	if conversions == nil {
		conversions = []database.Conversion{}
	}
	return c.JSON(http.StatusOK, conversions)
}

// GetConversion retrieves a conversion by id
func (serverHandler *ServerHandler) GetConversion(c echo.Context) error {
	conversionID, err := ulid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid conversion ID format",
		})
	}
	conversion, err := serverHandler.DB.GetConversion(conversionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "Conversion not found",
			})
		}
		Logger.Error("Failed to get conversion", "id", conversionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve conversion",
		})
	}
	return c.JSON(http.StatusOK, conversion)
}

// importPath resolves a requested path against the import root and
// rejects anything that ends up outside it
func (serverHandler *ServerHandler) importPath(requested string) (string, error) {
	root := filepath.Clean(serverHandler.ImporterConfig.ImportRoot)
	if serverHandler.ImporterConfig.ImportRoot == "" {
		return "", fmt.Errorf("no import root configured")
	}
	resolved := requested
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)
	inside := within(root, resolved)
	// symlinks below the root must not lead out of it
	if real, err := filepath.EvalSymlinks(resolved); inside && err == nil {
		if realRoot, err := filepath.EvalSymlinks(root); err == nil {
			inside = within(realRoot, real)
		}
	}
	if !inside {
		Logger.Warn("Rejected path outside import root", "path", requested, "root", root)
		return "", fmt.Errorf("path %s is outside the import root", requested)
	}
	return resolved, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInputNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTextUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, ErrConversionFailed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
