package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/chopwell/chopwell-api/config"
	"github.com/chopwell/chopwell-api/database"
	"github.com/chopwell/chopwell-api/realtime"
	"github.com/chopwell/chopwell-api/router"
	"github.com/chopwell/chopwell-api/services"
	"github.com/chopwell/chopwell-api/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	utils.InitLogger()

	db, err := config.InitDB()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to migrate schema: %v", err)
	}
	if err := database.SeedOrderStatuses(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to seed order statuses: %v", err)
	}

	catalog, err := services.LoadStatusCatalog(db)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load status catalog: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := realtime.NewHub(utils.InfoLogger)

	gateway := services.GetPaystackService(utils.InfoLogger)
	if err := gateway.ValidateConfig(); err != nil {
		utils.ErrorLogger.Printf("Paystack configuration incomplete: %v", err)
	}

	stateMachine := services.NewOrderStateMachine(db, catalog, hub, utils.InfoLogger)
	orders := services.NewOrderService(db, catalog, utils.InfoLogger)
	deliveries := services.NewDeliveryService(db, catalog, stateMachine, hub, utils.InfoLogger)
	payments := services.NewPaymentService(db, gateway, hub, utils.InfoLogger)

	monitor := services.NewPaymentMonitor(db, payments, utils.InfoLogger)
	monitor.Start()
	defer monitor.Stop()

	r := router.SetupRouter(router.Deps{
		DB:           db,
		Orders:       orders,
		StateMachine: stateMachine,
		Deliveries:   deliveries,
		Payments:     payments,
		Gateway:      gateway,
		Hub:          hub,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	utils.InfoLogger.Printf("Listening on port %s", port)
	if err := r.Run(":" + port); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}
