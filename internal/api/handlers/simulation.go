package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"energy-mca/internal/analysis"
	"energy-mca/internal/api/models"
	"energy-mca/internal/config"
	"energy-mca/internal/data"
	"energy-mca/internal/mca"
	"energy-mca/internal/model"
	"energy-mca/internal/results"
	"energy-mca/pkg/logger"
	"energy-mca/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SimulationHandler handles simulation requests
type SimulationHandler struct {
	settings mca.Settings
	cache    *data.ResultCache
	models   *ModelHandler
	maxBody  int64
	log      logger.Logger
	metrics  *metrics.Manager
}

// NewSimulationHandler creates a new simulation handler. Finished runs are
// kept in cache; models names the directory model_file requests read from.
func NewSimulationHandler(settings mca.Settings, cache *data.ResultCache, modelDir *ModelHandler, maxBody int64) *SimulationHandler {
	return &SimulationHandler{
		settings: settings,
		cache:    cache,
		models:   modelDir,
		maxBody:  maxBody,
		log:      logger.Named("api"),
		metrics:  metrics.Default(),
	}
}

// RunSimulation handles POST /api/v1/simulations
//
// The body is either a JSON SimulationRequest or, with a YAML content type,
// a bare model definition.
func (h *SimulationHandler) RunSimulation(c *gin.Context) {
	req, err := h.bindRequest(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	cfg, err := h.loadModel(req)
	if err != nil {
		writeModelError(c, err)
		return
	}
	m, err := cfg.Build()
	if err != nil {
		writeModelError(c, err)
		return
	}

	settings := ApplyOverrides(h.settings, req.Settings)
	engine, err := mca.New(settings, mca.WithLogger(h.log.Named("mca")), mca.WithMetrics(h.metrics))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_SETTINGS", err.Error(), nil)
		return
	}

	run, runErr := engine.Run(c.Request.Context(), m)
	if runErr != nil && (run == nil || !errors.Is(runErr, model.ErrNonConvergence)) {
		writeModelError(c, runErr)
		return
	}

	tables := results.FromRun(run, m.Timeslices, m.Registry)
	weights := m.Timeslices.Weights()
	summary := analysis.Summarize(run, tables, weights)
	h.cache.Set(run.ID, &data.Simulation{Run: run, Tables: tables, Summary: &summary, Weights: weights, Err: runErr})

	c.JSON(http.StatusOK, h.buildResponse(run, tables, summary, runErr, req.Options.IncludeTables))
}

func (h *SimulationHandler) bindRequest(c *gin.Context) (*models.SimulationRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	ct := c.ContentType()
	if strings.Contains(ct, "yaml") {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		return &models.SimulationRequest{ModelYAML: string(raw)}, nil
	}
	var req models.SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	if req.ModelYAML == "" && req.ModelFile == "" {
		return nil, errors.New("one of model_yaml or model_file is required")
	}
	return &req, nil
}

func (h *SimulationHandler) loadModel(req *models.SimulationRequest) (*config.Config, error) {
	if req.ModelYAML != "" {
		return config.ParseAndValidate([]byte(req.ModelYAML))
	}
	path, err := h.models.Resolve(req.ModelFile)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func (h *SimulationHandler) buildResponse(run *mca.Run, tables *results.Tables, summary analysis.RunSummary, runErr error, includeTables bool) models.SimulationResponse {
	resp := models.SimulationResponse{
		ID:      run.ID.String(),
		Status:  models.StatusConverged,
		Summary: summary,
	}
	switch {
	case run.Aborted:
		resp.Status = models.StatusAborted
		if runErr != nil {
			resp.Message = runErr.Error()
		}
	case !run.Converged():
		resp.Status = models.StatusApproximate
	}
	for _, y := range run.Years {
		for _, w := range y.Warnings {
			resp.Warnings = append(resp.Warnings, models.WarningInfo{
				Year:      y.Year,
				Sector:    w.Sector,
				Commodity: w.Commodity,
				Timeslice: w.Timeslice,
				Quantity:  w.Quantity,
				Rationed:  w.Rationed,
			})
		}
	}
	if includeTables {
		resp.Tables = tables
	}
	return resp
}

// ListSimulations handles GET /api/v1/simulations
func (h *SimulationHandler) ListSimulations(c *gin.Context) {
	ids := h.cache.IDs()
	out := models.SimulationList{IDs: make([]string, len(ids))}
	for i, id := range ids {
		out.IDs[i] = id.String()
	}
	c.JSON(http.StatusOK, out)
}

// GetSimulation handles GET /api/v1/simulations/:id
func (h *SimulationHandler) GetSimulation(c *gin.Context) {
	sim, ok := h.lookup(c)
	if !ok {
		return
	}
	include := c.Query("include_tables") == "true"
	c.JSON(http.StatusOK, h.buildResponse(sim.Run, sim.Tables, *sim.Summary, sim.Err, include))
}

// GetCapacity handles GET /api/v1/simulations/:id/capacity
func (h *SimulationHandler) GetCapacity(c *gin.Context) {
	sim, ok := h.lookup(c)
	if !ok {
		return
	}
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.CapacityResponse{ID: sim.Run.ID.String(), Rows: sim.Tables.CapacityRows(f)})
}

// GetSupply handles GET /api/v1/simulations/:id/supply
func (h *SimulationHandler) GetSupply(c *gin.Context) {
	sim, ok := h.lookup(c)
	if !ok {
		return
	}
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.FlowResponse{ID: sim.Run.ID.String(), Rows: sim.Tables.SupplyRows(f)})
}

// GetConsumption handles GET /api/v1/simulations/:id/consumption
func (h *SimulationHandler) GetConsumption(c *gin.Context) {
	sim, ok := h.lookup(c)
	if !ok {
		return
	}
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.FlowResponse{ID: sim.Run.ID.String(), Rows: sim.Tables.ConsumptionRows(f)})
}

// GetPrices handles GET /api/v1/simulations/:id/prices
func (h *SimulationHandler) GetPrices(c *gin.Context) {
	sim, ok := h.lookup(c)
	if !ok {
		return
	}
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.PriceResponse{ID: sim.Run.ID.String(), Rows: sim.Tables.PriceRows(f)})
}

func (h *SimulationHandler) lookup(c *gin.Context) (*data.Simulation, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("invalid simulation id %q", c.Param("id")), nil)
		return nil, false
	}
	sim, ok := h.cache.Get(id)
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "simulation not found or expired", map[string]interface{}{"id": id.String()})
		return nil, false
	}
	return sim, true
}

func parseFilter(c *gin.Context) (results.Filter, bool) {
	f := results.Filter{
		Sector:     c.Query("sector"),
		Technology: c.Query("technology"),
		Commodity:  c.Query("commodity"),
	}
	if y := c.Query("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_QUERY", fmt.Sprintf("invalid year %q", y), nil)
			return f, false
		}
		f.Year = year
	}
	return f, true
}

// ApplyOverrides overlays the set fields of o onto base.
func ApplyOverrides(base mca.Settings, o models.SettingsOverrides) mca.Settings {
	out := base
	if o.Tolerance != nil {
		out.Tolerance = *o.Tolerance
	}
	if o.Damping != nil {
		out.Damping = *o.Damping
	}
	if o.MaxRounds != nil {
		out.MaxRounds = *o.MaxRounds
	}
	if o.CalmRounds != nil {
		out.CalmRounds = *o.CalmRounds
	}
	if o.PriceFloor != nil {
		out.PriceFloor = *o.PriceFloor
	}
	if o.PriceCeiling != nil {
		out.PriceCeiling = *o.PriceCeiling
	}
	if o.KeepRounds != nil {
		out.KeepRounds = *o.KeepRounds
	}
	if o.AllowCycles != nil {
		out.AllowCycles = *o.AllowCycles
	}
	if o.OnNonConvergence != nil {
		out.OnNonConvergence = *o.OnNonConvergence
	}
	if o.Ranker != nil {
		out.Ranker = *o.Ranker
	}
	if len(o.DispatchOrder) > 0 {
		out.DispatchOrder = o.DispatchOrder
	}
	return out
}
