package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/sam2engine/internal/orchestrator"
	"github.com/your-org/sam2engine/internal/tensorutil"
	"github.com/your-org/sam2engine/pkg/dto"
)

// SegmentHandler is the HTTP face of the Orchestrator (C7): capture an
// image, segment it from point prompts, and apply or cancel the
// resulting mask (spec §4.4, §6).
type SegmentHandler struct {
	orch *orchestrator.Orchestrator
}

func NewSegmentHandler(orch *orchestrator.Orchestrator) *SegmentHandler {
	return &SegmentHandler{orch: orch}
}

func (h *SegmentHandler) Capture(c *gin.Context) {
	var req dto.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "InvalidArguments", Message: err.Error()})
		return
	}

	encodeMs, err := h.orch.CapturePreview(c.Request.Context(), req.ImageId, req.RGBA, req.Width, req.Height)
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, dto.CaptureResponse{ImageId: req.ImageId, EncodeTimeMs: encodeMs})
}

func (h *SegmentHandler) Segment(c *gin.Context) {
	var req dto.SegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "InvalidArguments", Message: err.Error()})
		return
	}

	points := make([]tensorutil.ScaledPoint, len(req.Points))
	for i, p := range req.Points {
		sx, sy := tensorutil.ScalePoint(p.X, p.Y, req.Width, req.Height)
		label := tensorutil.LabelBackground
		if p.Label == 1 {
			label = tensorutil.LabelForeground
		}
		points[i] = tensorutil.ScaledPoint{X: sx, Y: sy, Label: label}
	}

	outcome, err := h.orch.Segment(c.Request.Context(), req.ImageId, points, req.Width, req.Height)
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, dto.SegmentResponse{
		ImageId:       outcome.ImageId,
		SelectedIndex: outcome.SelectedIndex,
		IoUScores:     outcome.IoUScores,
		DecodeTimeMs:  outcome.DecodeTimeMs,
	})
}

func (h *SegmentHandler) ApplyMask(c *gin.Context) {
	var req dto.ApplyMaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "InvalidArguments", Message: err.Error()})
		return
	}

	if err := h.orch.ApplyMask(c.Request.Context(), tensorutil.SelectionOp(req.Op)); err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *SegmentHandler) CancelMask(c *gin.Context) {
	h.orch.CancelMask()
	c.Status(http.StatusNoContent)
}

func (h *SegmentHandler) Abort(c *gin.Context) {
	h.orch.Abort()
	c.Status(http.StatusNoContent)
}
