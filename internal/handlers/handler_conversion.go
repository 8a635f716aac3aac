package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/canbulut/fxbatch/internal/apperrors"
	portssvc "github.com/canbulut/fxbatch/internal/core/ports/services"
	"github.com/canbulut/fxbatch/internal/dto"
	"github.com/canbulut/fxbatch/internal/middleware"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/gin-gonic/gin"
)

// conversionHandler handles HTTP requests for single conversions and history.
type conversionHandler struct {
	conversionService portssvc.ConversionSvcFacade
}

func newConversionHandler(cs portssvc.ConversionSvcFacade) *conversionHandler {
	return &conversionHandler{
		conversionService: cs,
	}
}

// registerConversionRoutes registers routes related to conversions.
func registerConversionRoutes(rg *gin.RouterGroup, conversionService portssvc.ConversionSvcFacade) {
	h := newConversionHandler(conversionService)

	conversions := rg.Group("/conversions")
	{
		conversions.POST("", h.createConversion)
		conversions.GET("", h.listConversions)
		conversions.GET("/:transactionId", h.getConversion)
	}
}

// createConversion godoc
// @Summary Convert an amount between two currencies
// @Description Performs a single synchronous conversion and persists the result
// @Tags conversions
// @Accept  json
// @Produce  json
// @Param   conversion body dto.CreateConversionRequest true "Conversion details"
// @Success 201 {object} dto.ConversionResponse
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 502 {object} map[string]string "Rate service unavailable"
// @Router /conversions [post]
func (h *conversionHandler) createConversion(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateConversion", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	correlationID := middleware.GetRequestIDFromContext(c)
	logger.Info("Received request to convert",
		slog.String("pair", req.SourceCurrency+"/"+req.TargetCurrency))

	result, err := h.conversionService.Convert(c.Request.Context(), req, correlationID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			logger.Warn("Validation error converting", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrNotFound):
			logger.Warn("No rate for pair", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "No exchange rate available for " + req.SourceCurrency + "/" + req.TargetCurrency})
		case errors.Is(err, apperrors.ErrUnavailable):
			logger.Error("Rate service unavailable", slog.String("error", err.Error()))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Exchange rate service is temporarily unavailable"})
		default:
			logger.Error("Failed to convert in service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process conversion"})
		}
		return
	}

	logger.Info("Conversion created successfully", slog.String("transaction_id", result.TransactionID))
	record := models.RecordFromResult(*result, correlationID)
	c.JSON(http.StatusCreated, dto.ToConversionResponse(&record))
}

// getConversion godoc
// @Summary Get a conversion by transaction id
// @Description Retrieves one conversion from the read model
// @Tags conversions
// @Produce  json
// @Param   transactionId path string true "Transaction ID"
// @Success 200 {object} dto.ConversionResponse
// @Failure 404 {object} map[string]string "Conversion not found"
// @Router /conversions/{transactionId} [get]
func (h *conversionHandler) getConversion(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transactionID := c.Param("transactionId")

	record, err := h.conversionService.GetByTransactionID(c.Request.Context(), transactionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Conversion not found", slog.String("transaction_id", transactionID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversion not found"})
		} else {
			logger.Error("Failed to get conversion from service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve conversion"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToConversionResponse(record))
}

// listConversions godoc
// @Summary List conversion history
// @Description Retrieves a page of conversions from the read model, newest first
// @Tags conversions
// @Produce  json
// @Param   page query int false "Zero-based page" default(0)
// @Param   size query int false "Page size" default(20) maximum(100)
// @Success 200 {object} dto.ConversionPageResponse
// @Failure 500 {object} map[string]string "Failed to list conversions"
// @Router /conversions [get]
func (h *conversionHandler) listConversions(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	page := queryInt(c, "page", 0)
	size := queryInt(c, "size", 20)
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	records, total, err := h.conversionService.ListConversions(c.Request.Context(), page, size)
	if err != nil {
		logger.Error("Failed to list conversions from service", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversions"})
		return
	}

	c.JSON(http.StatusOK, dto.ToConversionPageResponse(records, page, size, total))
}

// queryInt parses an integer query parameter, falling back on absence or garbage.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
