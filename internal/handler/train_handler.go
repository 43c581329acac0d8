// internal/handler/train_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wecassidy/T564/internal/t564"
	"github.com/wecassidy/T564/internal/utils"
	"github.com/wecassidy/T564/pkg/units"
)

// TrainHandler handles pulse train configuration requests
type TrainHandler struct {
	controller *t564.Controller
	logger     *utils.ServiceLogger
}

// NewTrainHandler creates a new train handler
func NewTrainHandler(controller *t564.Controller, logger *zap.Logger) *TrainHandler {
	return &TrainHandler{
		controller: controller,
		logger:     utils.NewServiceLogger(logger, "train-handler"),
	}
}

// RegisterRoutes registers train routes
func (h *TrainHandler) RegisterRoutes(router *gin.RouterGroup) {
	train := router.Group("/train")
	{
		train.GET("", h.GetTrain)
		train.PUT("", h.UpdateTrain)
	}
}

// TrainUpdateRequest carries the train parameters. Spacing is a tagged
// quantity such as "1 us"; the applied spacing may differ from the
// request after flooring and tick quantization.
type TrainUpdateRequest struct {
	Count   *uint64 `json:"count"`
	Spacing *string `json:"spacing"`
}

// GetTrain returns the mirrored train configuration
func (h *TrainHandler) GetTrain(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Train configuration retrieved", gin.H{
		"count":      h.controller.TrainCount(),
		"spacing_ns": h.controller.TrainSpacingNS(),
	})
}

// UpdateTrain programs the pulse count and spacing
func (h *TrainHandler) UpdateTrain(c *gin.Context) {
	var req TrainUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Count != nil {
		if err := h.controller.SetTrainCount(*req.Count); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set train count", err)
			return
		}
	}

	if req.Spacing != nil {
		q, err := units.Parse(*req.Spacing)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid spacing", err)
			return
		}
		effective, err := h.controller.SetTrainSpacing(q)
		if err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set train spacing", err)
			return
		}
		h.logger.Info("Train spacing applied", zap.Float64("effective_ns", effective))
	}

	utils.SuccessResponse(c, http.StatusOK, "Train configuration updated", gin.H{
		"count":      h.controller.TrainCount(),
		"spacing_ns": h.controller.TrainSpacingNS(),
	})
}
