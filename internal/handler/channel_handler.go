// internal/handler/channel_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wecassidy/T564/internal/t564"
	"github.com/wecassidy/T564/internal/utils"
	"github.com/wecassidy/T564/pkg/units"
)

// ChannelHandler handles channel configuration requests
type ChannelHandler struct {
	controller *t564.Controller
	logger     *utils.ServiceLogger
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(controller *t564.Controller, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{
		controller: controller,
		logger:     utils.NewServiceLogger(logger, "channel-handler"),
	}
}

// RegisterRoutes registers channel routes
func (h *ChannelHandler) RegisterRoutes(router *gin.RouterGroup) {
	channels := router.Group("/channels")
	{
		channels.GET("", h.ListChannels)
		channels.GET("/:id", h.GetChannel)
		channels.PUT("/:id", h.UpdateChannel)
	}
}

// ChannelUpdateRequest carries the writable channel fields. Delay and
// width are tagged quantities such as "100 ns" or "1.5 us"; a bare
// number is rejected rather than guessed at.
type ChannelUpdateRequest struct {
	Enabled  *bool   `json:"enabled"`
	Polarity *string `json:"polarity"`
	Delay    *string `json:"delay"`
	Width    *string `json:"width"`
}

// ListChannels returns the cached mirrors of all four channels
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Channels retrieved", gin.H{
		"channels": h.controller.ChannelSettings(),
	})
}

// GetChannel re-reads one channel from the instrument
func (h *ChannelHandler) GetChannel(c *gin.Context) {
	id, err := t564.NormalizeChannel(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Unknown channel", err)
		return
	}

	settings, err := h.controller.QueryChannel(id)
	if err != nil {
		h.logger.Error("Channel query failed", zap.String("channel", string(id)), zap.Error(err))
		utils.InstrumentErrorResponse(c, "Failed to query channel", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Channel retrieved", settings)
}

// UpdateChannel applies the requested channel changes in order. The
// broadcast channel q applies each change to all four outputs.
func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	id, err := t564.NormalizeChannel(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Unknown channel", err)
		return
	}

	var req ChannelUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Polarity != nil {
		polarity, err := parsePolarity(*req.Polarity)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid polarity", err)
			return
		}
		if err := h.controller.SetChannelPolarity(id, polarity); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set polarity", err)
			return
		}
	}

	if req.Delay != nil {
		q, err := units.Parse(*req.Delay)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid delay", err)
			return
		}
		if err := h.controller.SetChannelDelay(id, q); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set delay", err)
			return
		}
	}

	if req.Width != nil {
		q, err := units.Parse(*req.Width)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid width", err)
			return
		}
		if err := h.controller.SetChannelWidth(id, q); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set width", err)
			return
		}
	}

	if req.Enabled != nil {
		if err := h.controller.SetChannelEnabled(id, *req.Enabled); err != nil {
			utils.InstrumentErrorResponse(c, "Failed to set enable state", err)
			return
		}
	}

	h.logger.Info("Channel updated", zap.String("channel", string(id)))

	if id == t564.ChannelAll {
		utils.SuccessResponse(c, http.StatusOK, "All channels updated", gin.H{
			"channels": h.controller.ChannelSettings(),
		})
		return
	}
	settings, err := h.controller.ChannelMirror(id)
	if err != nil {
		utils.InstrumentErrorResponse(c, "Failed to read channel mirror", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Channel updated", settings)
}

func parsePolarity(v string) (t564.Polarity, error) {
	switch v {
	case "high":
		return t564.PolarityHigh, nil
	case "low":
		return t564.PolarityLow, nil
	}
	return "", &t564.RangeError{What: "polarity", Value: v, Min: "high", Max: "low"}
}
