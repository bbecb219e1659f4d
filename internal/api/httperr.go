package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glosapay/glosapay/internal/errs"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses. Verification
// failures are handled separately by the payload handler because their body
// is 402-shaped.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errs.Is(err, errs.ErrConflict):
		status = http.StatusConflict
	case errs.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errs.Is(err, errs.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errs.Is(err, errs.ErrExpired):
		status = http.StatusGone
	case errs.Is(err, errs.ErrVerification):
		status = http.StatusPaymentRequired
	case errs.Is(err, errs.ErrSettlement):
		status = http.StatusBadGateway
	}

	c.JSON(status, errorResponse{
		Error:  err.Error(),
		Reason: errs.ReasonOf(err),
	})
}
