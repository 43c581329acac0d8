// internal/handler/instrument_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wecassidy/T564/internal/t564"
	"github.com/wecassidy/T564/internal/utils"
	"github.com/wecassidy/T564/pkg/units"
)

// InstrumentHandler handles clock, trigger and nonvolatile memory
// requests that apply to the instrument as a whole.
type InstrumentHandler struct {
	controller *t564.Controller
	logger     *utils.ServiceLogger
}

// NewInstrumentHandler creates a new instrument handler
func NewInstrumentHandler(controller *t564.Controller, logger *zap.Logger) *InstrumentHandler {
	return &InstrumentHandler{
		controller: controller,
		logger:     utils.NewServiceLogger(logger, "instrument-handler"),
	}
}

// RegisterRoutes registers instrument-level routes
func (h *InstrumentHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/clock", h.GetClock)
	router.PUT("/clock", h.UpdateClock)

	trigger := router.Group("/trigger")
	{
		trigger.PUT("/level", h.SetTriggerLevel)
		trigger.POST("/arm", h.ArmTrigger)
		trigger.POST("/fire", h.FireTrigger)
	}

	memory := router.Group("/memory")
	{
		memory.POST("/save", h.SaveSetup)
		memory.POST("/recall", h.RecallSetup)
	}

	router.GET("/status", h.InstrumentStatus)
	router.PUT("/autoinstall", h.SetAutoinstall)
}

// ClockUpdateRequest sets the synthesizer by frequency or period (tagged
// quantities, e.g. "8 MHz" or "125 ns"), or switches the reference
// source ("internal", "external", "output").
type ClockUpdateRequest struct {
	Frequency *string `json:"frequency"`
	Period    *string `json:"period"`
	Source    *string `json:"source"`
}

// TriggerLevelRequest sets the external trigger threshold
type TriggerLevelRequest struct {
	Volts float64 `json:"volts" binding:"required"`
}

// AutoinstallRequest selects how channel edits are applied
type AutoinstallRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// GetClock returns the clock source and the mirrored timing cycle
func (h *InstrumentHandler) GetClock(c *gin.Context) {
	status, err := h.controller.ClockStatus()
	if err != nil {
		utils.InstrumentErrorResponse(c, "Failed to query clock", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Clock retrieved", gin.H{
		"source":       status,
		"frequency_hz": h.controller.Frequency(),
		"period_ns":    h.controller.PeriodNS(),
	})
}

// UpdateClock reprograms the synthesizer or the reference source
func (h *InstrumentHandler) UpdateClock(c *gin.Context) {
	var req ClockUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Frequency != nil && req.Period != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Set frequency or period, not both", nil)
		return
	}

	if req.Frequency != nil {
		q, err := units.Parse(*req.Frequency)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid frequency", err)
			return
		}
		if err := h.controller.SetFrequency(q); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set frequency", err)
			return
		}
	}

	if req.Period != nil {
		q, err := units.Parse(*req.Period)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid period", err)
			return
		}
		if err := h.controller.SetPeriod(q); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set period", err)
			return
		}
	}

	if req.Source != nil {
		var err error
		switch *req.Source {
		case "internal":
			// Power-on state; nothing to send.
		case "external":
			err = h.controller.ClockIn()
		case "output":
			err = h.controller.ClockOut()
		default:
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid clock source", nil)
			return
		}
		if err != nil {
			utils.InstrumentErrorResponse(c, "Failed to switch clock source", err)
			return
		}
	}

	h.logger.Info("Clock updated", zap.Float64("frequency_hz", h.controller.Frequency()))
	utils.SuccessResponse(c, http.StatusOK, "Clock updated", gin.H{
		"frequency_hz": h.controller.Frequency(),
		"period_ns":    h.controller.PeriodNS(),
	})
}

// SetTriggerLevel sets the external trigger threshold
func (h *InstrumentHandler) SetTriggerLevel(c *gin.Context) {
	var req TriggerLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.controller.SetTriggerLevel(req.Volts); err != nil {
		utils.InstrumentErrorResponse(c, "Failed to set trigger level", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Trigger level set", gin.H{"volts": req.Volts})
}

// ArmTrigger switches to software (remote) triggering
func (h *InstrumentHandler) ArmTrigger(c *gin.Context) {
	if err := h.controller.ArmSoftwareTrigger(); err != nil {
		utils.InstrumentErrorResponse(c, "Failed to arm software trigger", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Software trigger armed", nil)
}

// FireTrigger fires one software trigger
func (h *InstrumentHandler) FireTrigger(c *gin.Context) {
	if err := h.controller.FireTrigger(); err != nil {
		utils.InstrumentErrorResponse(c, "Failed to fire trigger", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Trigger fired", nil)
}

// SaveSetup stores the active settings in nonvolatile memory
func (h *InstrumentHandler) SaveSetup(c *gin.Context) {
	if err := h.controller.SaveSetup(); err != nil {
		utils.InstrumentErrorResponse(c, "Failed to save setup", err)
		return
	}
	h.logger.Info("Setup saved to nonvolatile memory")
	utils.SuccessResponse(c, http.StatusOK, "Setup saved", nil)
}

// RecallSetup loads the nonvolatile settings
func (h *InstrumentHandler) RecallSetup(c *gin.Context) {
	if err := h.controller.RecallSetup(); err != nil {
		utils.InstrumentErrorResponse(c, "Failed to recall setup", err)
		return
	}
	h.logger.Info("Setup recalled from nonvolatile memory")
	utils.SuccessResponse(c, http.StatusOK, "Setup recalled", nil)
}

// InstrumentStatus returns the raw status dump
func (h *InstrumentHandler) InstrumentStatus(c *gin.Context) {
	status, err := h.controller.Status()
	if err != nil {
		utils.InstrumentErrorResponse(c, "Failed to query status", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved", gin.H{"status": status})
}

// SetAutoinstall selects off, install or queue mode
func (h *InstrumentHandler) SetAutoinstall(c *gin.Context) {
	var req AutoinstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.controller.SetAutoinstall(t564.AutoinstallMode(req.Mode)); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid autoinstall mode", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Autoinstall mode set", gin.H{
		"mode": h.controller.Autoinstall(),
	})
}
