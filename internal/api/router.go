package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the routes. Privileged routes (manual confirmation, 2FA
// code supply) sit behind the internal-key guard.
func NewRouter(h *Handlers, internalKey string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(h.Log))
	router.Use(cors.Default())

	router.GET("/health", h.health)
	router.GET("/supported", h.supported)

	payments := router.Group("/payments")
	{
		payments.POST("/x402", h.createPaymentJob)
		payments.POST("/x402/:jobId/payload", h.submitPayload)
		payments.POST("/x402/:jobId/confirm", internalKeyAuth(internalKey), h.confirmPayment)
		payments.GET("/x402/:jobId", h.getJob)

		payments.POST("/qr", h.queueQR)
		payments.POST("/qr/verify", h.queueVerify)

		payments.POST("/orders", h.createOrder)
	}

	router.GET("/orders/:orderId/payment", h.getJobByOrder)

	internal := router.Group("/internal", internalKeyAuth(internalKey))
	{
		internal.POST("/2fa", h.setTwoFactorCode)
	}

	return router
}
