// Package api exposes the orchestration core over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glosapay/glosapay/internal/errs"
	"github.com/glosapay/glosapay/internal/fiat"
	"github.com/glosapay/glosapay/internal/hybrid"
	"github.com/glosapay/glosapay/internal/payment"
	"github.com/glosapay/glosapay/internal/twofactor"
	"github.com/glosapay/glosapay/internal/x402"
)

// Handlers carries the dependencies of every route.
type Handlers struct {
	Payments  *payment.Machine
	Fiat      *fiat.Orchestrator
	Hybrid    *hybrid.Coordinator
	Tokens    *twofactor.Store
	Supported []x402.SupportedKind
	Log       *slog.Logger
}

type createPaymentJobRequest struct {
	OrderID                    string  `json:"orderId" binding:"required"`
	AmountUSD                  float64 `json:"amountUsd" binding:"required"`
	Description                string  `json:"description"`
	Resource                   string  `json:"resource"`
	RequiresManualConfirmation bool    `json:"requiresManualConfirmation"`
}

func (h *Handlers) createPaymentJob(c *gin.Context) {
	var req createPaymentJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Mark(errs.Wrap(err, "invalid request body"), errs.ErrValidation))
		return
	}

	job, err := h.Payments.CreatePaymentJob(c.Request.Context(), payment.CreatePaymentJobParams{
		OrderID:                    req.OrderID,
		AmountUSD:                  req.AmountUSD,
		Description:                req.Description,
		Resource:                   req.Resource,
		RequiresManualConfirmation: req.RequiresManualConfirmation,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"jobId":               job.ID,
		"status":              job.Status,
		"paymentRequirements": job.Requirements,
	})
}

type submitPayloadRequest struct {
	Payload string `json:"payload" binding:"required"`
}

func (h *Handlers) submitPayload(c *gin.Context) {
	var req submitPayloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Mark(errs.Wrap(err, "invalid request body"), errs.ErrValidation))
		return
	}

	job, err := h.Payments.ProcessPayment(c.Request.Context(), c.Param("jobId"), req.Payload)
	if err != nil {
		// A rejected payload answers with the original 402 offer so the
		// client can correct and resubmit against the same requirements.
		if errs.Is(err, errs.ErrVerification) {
			c.JSON(http.StatusPaymentRequired, x402.PaymentRequired{
				X402Version: x402.Version,
				Error:       errs.ReasonOf(err),
				Accepts:     []x402.PaymentRequirements{job.Requirements},
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

type confirmPaymentRequest struct {
	ConfirmedBy string `json:"confirmedBy" binding:"required"`
}

func (h *Handlers) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Mark(errs.Wrap(err, "invalid request body"), errs.ErrValidation))
		return
	}

	job, err := h.Payments.ConfirmPayment(c.Request.Context(), c.Param("jobId"), req.ConfirmedBy)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handlers) getJob(c *gin.Context) {
	job, ok := h.Payments.GetJob(c.Param("jobId"))
	if !ok {
		writeError(c, errs.Mark(errs.Newf("payment job %s not found", c.Param("jobId")), errs.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handlers) getJobByOrder(c *gin.Context) {
	job, ok := h.Payments.GetJobByOrderID(c.Param("orderId"))
	if !ok {
		writeError(c, errs.Mark(errs.Newf("no payment job for order %s", c.Param("orderId")), errs.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, job)
}

type queueQRRequest struct {
	OrderID string  `json:"orderId" binding:"required"`
	Amount  float64 `json:"amount" binding:"required"`
	Details string  `json:"details" binding:"required"`
}

func (h *Handlers) queueQR(c *gin.Context) {
	var req queueQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Mark(errs.Wrap(err, "invalid request body"), errs.ErrValidation))
		return
	}

	memo, _, err := h.Fiat.QueueGenerateQR(c.Request.Context(), req.OrderID, req.Amount, req.Details)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"orderId":        req.OrderID,
		"normalizedMemo": memo,
		"status":         "queued",
	})
}

type queueVerifyRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Details string `json:"details" binding:"required"`
}

func (h *Handlers) queueVerify(c *gin.Context) {
	var req queueVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Mark(errs.Wrap(err, "invalid request body"), errs.ErrValidation))
		return
	}

	memo, _, err := h.Fiat.QueueVerifyPayment(c.Request.Context(), req.OrderID, req.Details)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"orderId":        req.OrderID,
		"normalizedMemo": memo,
		"status":         "queued",
	})
}

type createOrderRequest struct {
	OrderID                    string  `json:"orderId" binding:"required"`
	AmountUSD                  float64 `json:"amountUsd" binding:"required"`
	Details                    string  `json:"details"`
	Description                string  `json:"description"`
	Method                     string  `json:"method" binding:"required"`
	RequiresManualConfirmation bool    `json:"requiresManualConfirmation"`
}

func (h *Handlers) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Mark(errs.Wrap(err, "invalid request body"), errs.ErrValidation))
		return
	}

	result, err := h.Hybrid.CreateOrder(c.Request.Context(), hybrid.Request{
		OrderID:                    req.OrderID,
		AmountUSD:                  req.AmountUSD,
		Details:                    req.Details,
		Description:                req.Description,
		Method:                     hybrid.Method(req.Method),
		RequiresManualConfirmation: req.RequiresManualConfirmation,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

type setCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handlers) setTwoFactorCode(c *gin.Context) {
	var req setCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Mark(errs.Wrap(err, "invalid request body"), errs.ErrValidation))
		return
	}

	h.Tokens.SetCode(req.Code)
	h.Log.Info("two-factor code supplied")
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) supported(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"kinds": h.Supported})
}
