// internal/handler/frame_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wecassidy/T564/internal/t564"
	"github.com/wecassidy/T564/internal/utils"
)

// FrameHandler handles frame sequencing requests
type FrameHandler struct {
	controller *t564.Controller
	logger     *utils.ServiceLogger
}

// NewFrameHandler creates a new frame handler
func NewFrameHandler(controller *t564.Controller, logger *zap.Logger) *FrameHandler {
	return &FrameHandler{
		controller: controller,
		logger:     utils.NewServiceLogger(logger, "frame-handler"),
	}
}

// RegisterRoutes registers frame routes
func (h *FrameHandler) RegisterRoutes(router *gin.RouterGroup) {
	frames := router.Group("/frames")
	{
		frames.GET("", h.GetFrames)
		frames.POST("", h.SaveFrame)
		frames.DELETE("", h.ClearFrames)
		frames.PUT("/sequence", h.UpdateSequence)
		frames.POST("/start", h.Start)
		frames.POST("/stop", h.Stop)
		frames.GET("/status", h.Status)
	}
}

// SaveFrameRequest selects an optional explicit slot. Without an index
// the frame goes into the next sequential slot.
type SaveFrameRequest struct {
	Index *int `json:"index"`
}

// SequenceUpdateRequest carries the playback window registers. Loops of
// zero means loop forever.
type SequenceUpdateRequest struct {
	Last  *int `json:"last"`
	Loops *int `json:"loops"`
}

// GetFrames returns the observational frame mirror and registers
func (h *FrameHandler) GetFrames(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Frames retrieved", h.controller.Frames())
}

// SaveFrame stores the live settings as a frame
func (h *FrameHandler) SaveFrame(c *gin.Context) {
	var req SaveFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Index != nil {
		if err := h.controller.SaveFrameAt(*req.Index); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to save frame", err)
			return
		}
		h.logger.Info("Frame overwritten", zap.Int("index", *req.Index))
		utils.SuccessResponse(c, http.StatusOK, "Frame saved", gin.H{"index": *req.Index})
		return
	}

	index, err := h.controller.SaveFrame()
	if err != nil {
		utils.InstrumentErrorResponse(c, "Failed to save frame", err)
		return
	}
	h.logger.Info("Frame saved", zap.Int("index", index))
	utils.SuccessResponse(c, http.StatusCreated, "Frame saved", gin.H{"index": index})
}

// ClearFrames resets the instrument frame memory
func (h *FrameHandler) ClearFrames(c *gin.Context) {
	if err := h.controller.ClearFrames(); err != nil {
		utils.InstrumentErrorResponse(c, "Failed to clear frames", err)
		return
	}
	h.logger.Info("Frame memory cleared")
	utils.SuccessResponse(c, http.StatusOK, "Frames cleared", nil)
}

// UpdateSequence moves the playback window registers
func (h *FrameHandler) UpdateSequence(c *gin.Context) {
	var req SequenceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Last != nil {
		if err := h.controller.SetFrameLast(*req.Last); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set last frame", err)
			return
		}
	}
	if req.Loops != nil {
		if err := h.controller.SetLoopCount(*req.Loops); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set loop count", err)
			return
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Sequence updated", h.controller.Frames())
}

// Start begins frame playback
func (h *FrameHandler) Start(c *gin.Context) {
	if err := h.controller.StartFrames(); err != nil {
		utils.InstrumentErrorResponse(c, "Failed to start playback", err)
		return
	}
	h.logger.Info("Frame playback started")
	utils.SuccessResponse(c, http.StatusOK, "Playback started", nil)
}

// Stop halts frame playback
func (h *FrameHandler) Stop(c *gin.Context) {
	if err := h.controller.StopFrames(); err != nil {
		utils.InstrumentErrorResponse(c, "Failed to stop playback", err)
		return
	}
	h.logger.Info("Frame playback stopped")
	utils.SuccessResponse(c, http.StatusOK, "Playback stopped", nil)
}

// Status queries the frame engine
func (h *FrameHandler) Status(c *gin.Context) {
	looping, err := h.controller.FramesLooping()
	if err != nil {
		utils.InstrumentErrorResponse(c, "Failed to query frame engine", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Frame status retrieved", gin.H{"looping": looping})
}
