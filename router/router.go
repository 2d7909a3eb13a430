package router

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/controllers"
	"github.com/chopwell/chopwell-api/middlewares"
	"github.com/chopwell/chopwell-api/models"
	"github.com/chopwell/chopwell-api/realtime"
	"github.com/chopwell/chopwell-api/services"
)

// Deps bundles the wired services the routes hang off.
type Deps struct {
	DB           *gorm.DB
	Orders       *services.OrderService
	StateMachine *services.OrderStateMachine
	Deliveries   *services.DeliveryService
	Payments     *services.PaymentService
	Gateway      *services.PaystackService
	Hub          *realtime.Hub
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()
	r.Use(middlewares.CORSMiddleware())
	r.Use(middlewares.LoggerMiddleware())

	userCtrl := controllers.NewUserController(deps.DB)
	orderCtrl := controllers.NewOrderController(deps.Orders, deps.StateMachine)
	paymentCtrl := controllers.NewPaymentController(deps.DB, deps.Payments, deps.Gateway)
	deliveryCtrl := controllers.NewDeliveryController(deps.Deliveries)
	realtimeCtrl := controllers.NewRealtimeController(deps.Hub)

	r.POST("/register", userCtrl.Register)
	r.POST("/login", userCtrl.Login)

	// Gateway webhooks authenticate with the body signature, not a token.
	r.POST("/webhooks/paystack", paymentCtrl.HandleWebhook)

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())
	{
		orders := api.Group("/orders")
		{
			orders.POST("", orderCtrl.Checkout)
			orders.GET("", orderCtrl.ListOrders)
			orders.GET("/:order_id", orderCtrl.GetOrder)
			orders.PATCH("/:order_id/items", orderCtrl.UpdateItems)
			orders.DELETE("/:order_id", orderCtrl.DeleteOrder)
			orders.GET("/:order_id/history", orderCtrl.GetStatusHistory)
			orders.GET("/:order_id/tracking", deliveryCtrl.GetLiveTracking)

			staffOnly := orders.Group("")
			staffOnly.Use(middlewares.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleDriver))
			staffOnly.PATCH("/:order_id/status", orderCtrl.UpdateStatus)

			dispatch := orders.Group("")
			dispatch.Use(middlewares.RequireRoles(models.RoleAdmin, models.RoleStaff))
			dispatch.POST("/:order_id/assign", deliveryCtrl.AssignDriver)
		}

		drivers := api.Group("/drivers")
		{
			drivers.GET("/available", deliveryCtrl.FindAvailableDrivers)

			self := drivers.Group("")
			self.Use(middlewares.RequireRoles(models.RoleDriver))
			self.POST("/location", deliveryCtrl.IngestLocation)
			self.POST("/vehicle", deliveryCtrl.RegisterVehicle)
			self.PATCH("/availability", deliveryCtrl.SetAvailability)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/initialize", paymentCtrl.InitializePayment)
			payments.GET("/verify/:reference", paymentCtrl.VerifyPayment)
			payments.GET("", paymentCtrl.ListPayments)
			payments.GET("/:payment_id", paymentCtrl.GetPayment)
			payments.GET("/:payment_id/invoice", paymentCtrl.GetInvoice)

			adminOnly := payments.Group("")
			adminOnly.Use(middlewares.RequireRoles(models.RoleAdmin))
			adminOnly.POST("/:payment_id/refund", paymentCtrl.InitiateRefund)
		}

		api.GET("/profile", userCtrl.GetProfile)
		api.GET("/events", realtimeCtrl.Events)
	}

	return r
}
