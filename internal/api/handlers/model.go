package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"energy-mca/internal/api/models"
	"energy-mca/internal/config"
	"energy-mca/pkg/logger"

	"github.com/gin-gonic/gin"
)

// DefaultModelDir is used when MODEL_DIR is unset.
const DefaultModelDir = "./examples/models"

var errInvalidModelName = errors.New("invalid model name")

// ModelHandler serves the model definitions stored on the server
type ModelHandler struct {
	dir string
	log logger.Logger
}

// NewModelHandler creates a new model handler. An empty dir falls back to
// MODEL_DIR and then DefaultModelDir.
func NewModelHandler(dir string) *ModelHandler {
	if dir == "" {
		dir = os.Getenv("MODEL_DIR")
	}
	if dir == "" {
		dir = DefaultModelDir
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &ModelHandler{dir: dir, log: logger.Named("models")}
}

// Dir returns the model directory.
func (h *ModelHandler) Dir() string { return h.dir }

// Resolve maps a model name onto a file in the model directory. The ".yaml"
// suffix is optional; names that leave the directory are rejected.
func (h *ModelHandler) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", errInvalidModelName, name)
	}
	if !strings.HasSuffix(name, ".yaml") {
		name += ".yaml"
	}
	path := filepath.Join(h.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("model %s: %w", strings.TrimSuffix(name, ".yaml"), err)
	}
	return path, nil
}

// ListModels handles GET /api/v1/models
func (h *ModelHandler) ListModels(c *gin.Context) {
	out := []models.ModelInfo{}

	entries, err := os.ReadDir(h.dir)
	if err != nil {
		h.log.Warn(c.Request.Context(), "model directory unreadable", logger.String("dir", h.dir), logger.Error(err))
		c.JSON(http.StatusOK, gin.H{"models": out})
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		info, err := h.loadModelInfo(c.Request.Context(), entry.Name())
		if err != nil {
			h.log.Warn(c.Request.Context(), "skipping model", logger.String("file", entry.Name()), logger.Error(err))
			continue
		}
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	c.JSON(http.StatusOK, gin.H{"models": out})
}

func (h *ModelHandler) loadModelInfo(ctx context.Context, filename string) (*models.ModelInfo, error) {
	cfg, err := config.LoadUnchecked(filepath.Join(h.dir, filename))
	if err != nil {
		return nil, err
	}
	// fragments such as technodata files carry no years
	if len(cfg.Years) == 0 || len(cfg.Sectors) == 0 {
		return nil, errors.New("not a model definition")
	}

	id := strings.TrimSuffix(filename, ".yaml")
	name := cfg.Name
	if name == "" {
		name = id
	}
	sectors := make([]string, len(cfg.Sectors))
	for i, s := range cfg.Sectors {
		sectors[i] = s.Name
	}
	h.log.Debug(ctx, "model listed", logger.String("id", id))
	return &models.ModelInfo{
		ID:      id,
		Name:    name,
		File:    filename,
		Years:   cfg.Years,
		Sectors: sectors,
	}, nil
}
