package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careoclock/server/internal/adherence"
	"github.com/careoclock/server/internal/alerts"
	"github.com/careoclock/server/internal/config"
	"github.com/careoclock/server/internal/metrics"
	"github.com/careoclock/server/internal/predict"
	"github.com/careoclock/server/internal/schedule"
	"github.com/careoclock/server/internal/store"
	"github.com/careoclock/server/internal/vitals"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server handles the HTTP API
type Server struct {
	app      *fiber.App
	config   *config.Config
	store    *store.Store
	engine   *alerts.Engine
	sweeper  *alerts.Sweeper
	schedule *schedule.Builder
	risk     *predict.Client
	logger   *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, st *store.Store, logger *zap.Logger) *Server {
	engine := alerts.NewEngine(st, logger)
	sweeper := alerts.NewSweeper(st, engine, logger, cfg.Alerts.SweepRatePerSec)
	riskClient := predict.NewClient(cfg.Predict.BaseURL,
		time.Duration(cfg.Predict.Timeout)*time.Second, logger)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:      app,
		config:   cfg,
		store:    st,
		engine:   engine,
		sweeper:  sweeper,
		schedule: schedule.NewBuilder(st),
		risk:     riskClient,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

// Engine exposes the rule engine for the dispatcher and scheduler wiring
func (s *Server) Engine() *alerts.Engine { return s.engine }

// Sweeper exposes the sweep runner for the scheduler wiring
func (s *Server) Sweeper() *alerts.Sweeper { return s.sweeper }

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check and metrics
	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")

	// Public routes
	api.Post("/auth/token", s.handleToken)

	// Protected routes
	protected := api.Use(s.authMiddleware())

	// Users
	protected.Post("/users", s.handleCreateUser)
	protected.Get("/users/:userId", s.handleGetUser)

	// Medicines
	protected.Post("/users/:userId/medicines", s.handleCreateMedicine)
	protected.Get("/users/:userId/medicines", s.handleListMedicines)

	// Intakes and schedule
	protected.Post("/users/:userId/intakes", s.handleLogIntake)
	protected.Get("/users/:userId/schedule/today", s.handleTodaySchedule)
	protected.Get("/users/:userId/adherence", s.handleAdherence)

	// Health records
	protected.Post("/users/:userId/health-records", s.handleCreateHealthRecord)
	protected.Get("/users/:userId/health-records", s.handleListHealthRecords)
	protected.Get("/users/:userId/health-trends", s.handleHealthTrends)

	// Risk assessment
	protected.Get("/users/:userId/risk", s.handleRisk)

	// Alerts
	protected.Get("/alerts", s.handleListAlerts)
	protected.Post("/alerts/:id/acknowledge", s.handleAcknowledgeAlert)

	// Admin
	protected.Post("/admin/sweep", s.handleSweep)
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App { return s.app }

// ==================== Handlers ====================

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleToken(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}

	user, err := s.store.GetUser(req.UserID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load user"})
	}
	if user == nil {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(7 * 24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	return c.JSON(fiber.Map{"token": tokenString})
}

func (s *Server) handleCreateUser(c *fiber.Ctx) error {
	var req struct {
		Name       string   `json:"name"`
		Email      string   `json:"email"`
		Role       string   `json:"role"`
		Caregivers []string `json:"caregivers"`
		Doctors    []string `json:"doctors"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Name == "" || req.Email == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name and email are required"})
	}
	switch req.Role {
	case store.RolePatient, store.RoleCaregiver, store.RoleDoctor:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "role must be patient, caregiver, or doctor"})
	}

	user := &store.User{
		Name:       req.Name,
		Email:      req.Email,
		Role:       req.Role,
		Caregivers: req.Caregivers,
		Doctors:    req.Doctors,
		IsActive:   true,
	}

	if err := s.store.CreateUser(user); err != nil {
		s.logger.Error("Failed to create user", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create user"})
	}

	return c.Status(201).JSON(user)
}

func (s *Server) handleGetUser(c *fiber.Ctx) error {
	user, err := s.store.GetUser(c.Params("userId"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load user"})
	}
	if user == nil {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}
	return c.JSON(user)
}

func (s *Server) handleCreateMedicine(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var req struct {
		Name          string   `json:"name"`
		Dosage        string   `json:"dosage"`
		Frequency     string   `json:"frequency"`
		Stock         int      `json:"stock"`
		LowStockDays  int      `json:"low_stock_days"`
		ReminderTimes []string `json:"reminder_times"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	for _, at := range req.ReminderTimes {
		if _, err := time.Parse("15:04", at); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": fmt.Sprintf("invalid reminder time %q", at)})
		}
	}

	med := &store.Medicine{
		UserID:        userID,
		Name:          req.Name,
		Dosage:        req.Dosage,
		Frequency:     req.Frequency,
		Stock:         req.Stock,
		LowStockDays:  req.LowStockDays,
		ReminderTimes: req.ReminderTimes,
		IsActive:      true,
	}

	if err := s.store.CreateMedicine(med); err != nil {
		s.logger.Error("Failed to create medicine", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create medicine"})
	}

	return c.Status(201).JSON(med)
}

func (s *Server) handleListMedicines(c *fiber.Ctx) error {
	meds, err := s.store.ListActiveMedicines(c.Params("userId"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list medicines"})
	}
	return c.JSON(meds)
}

func (s *Server) handleLogIntake(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var req struct {
		MedicineID    string `json:"medicine_id"`
		Status        string `json:"status"`
		ScheduledTime string `json:"scheduled_time"`
		Date          string `json:"date"` // YYYY-MM-DD, defaults to today
		Notes         string `json:"notes"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.MedicineID == "" || req.ScheduledTime == "" {
		return c.Status(400).JSON(fiber.Map{"error": "medicine_id and scheduled_time are required"})
	}
	switch req.Status {
	case store.IntakeTaken, store.IntakeMissed, store.IntakeSkipped, store.IntakePending:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "status must be pending, taken, missed, or skipped"})
	}
	if _, err := time.Parse("15:04", req.ScheduledTime); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "scheduled_time must be HH:MM"})
	}

	day := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "date must be YYYY-MM-DD"})
		}
		day = parsed
	}

	med, err := s.store.GetMedicine(req.MedicineID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load medicine"})
	}
	if med == nil || med.UserID != userID {
		return c.Status(404).JSON(fiber.Map{"error": "medicine not found"})
	}

	rec := &store.IntakeRecord{
		UserID:        userID,
		MedicineID:    req.MedicineID,
		Date:          day,
		ScheduledTime: req.ScheduledTime,
		Status:        req.Status,
		Notes:         req.Notes,
	}
	if req.Status == store.IntakeTaken {
		now := time.Now()
		rec.ActualTime = &now
	}

	saved, err := s.store.UpsertIntake(rec)
	if err != nil {
		s.logger.Error("Failed to log intake", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to log intake"})
	}
	metrics.IntakesLogged.WithLabelValues(saved.Status).Inc()

	resp := fiber.Map{"intake": saved}

	// A taken dose consumes one unit of stock.
	if req.Status == store.IntakeTaken {
		ok, err := s.store.DecrementStock(req.MedicineID, 1)
		if err != nil {
			s.logger.Error("Failed to decrement stock", zap.Error(err))
		} else if !ok {
			resp["stock_warning"] = "stock depleted"
		}
	}

	// Fire-and-forget: the dispatcher re-evaluates alert rules off the
	// request path. A queue failure is logged, never surfaced.
	if err := s.store.EnqueueEvaluation(userID); err != nil {
		s.logger.Warn("Failed to enqueue alert evaluation",
			zap.String("user_id", userID), zap.Error(err))
	}

	return c.Status(201).JSON(resp)
}

func (s *Server) handleTodaySchedule(c *fiber.Ctx) error {
	entries, err := s.schedule.ForToday(c.Params("userId"))
	if err != nil {
		s.logger.Error("Failed to build schedule", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to build schedule"})
	}
	return c.JSON(fiber.Map{"date": time.Now().Format("2006-01-02"), "schedule": entries})
}

func (s *Server) handleAdherence(c *fiber.Ctx) error {
	userID := c.Params("userId")
	days := c.QueryInt("days", 30)
	if days <= 0 || days > 365 {
		return c.Status(400).JSON(fiber.Map{"error": "days must be between 1 and 365"})
	}

	policy := adherence.SkipEmptyDays
	if c.Query("gaps") == "break" {
		policy = adherence.BreakOnGaps
	}

	records, err := s.store.GetIntakesSince(userID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		s.logger.Error("Failed to load intakes", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to load intakes"})
	}

	return c.JSON(adherence.BuildReport(records, policy))
}

func (s *Server) handleCreateHealthRecord(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var req struct {
		Systolic      *int     `json:"systolic"`
		Diastolic     *int     `json:"diastolic"`
		BloodSugar    *float64 `json:"blood_sugar"`
		SugarTestType string   `json:"sugar_test_type"`
		HeartRate     *int     `json:"heart_rate"`
		Temperature   *float64 `json:"temperature"`
		OxygenLevel   *float64 `json:"oxygen_level"`
		SleepHours    *float64 `json:"sleep_hours"`
		Notes         string   `json:"notes"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	rec := &store.HealthRecord{
		UserID:        userID,
		Date:          time.Now(),
		Systolic:      req.Systolic,
		Diastolic:     req.Diastolic,
		BloodSugar:    req.BloodSugar,
		SugarTestType: req.SugarTestType,
		HeartRate:     req.HeartRate,
		Temperature:   req.Temperature,
		OxygenLevel:   req.OxygenLevel,
		SleepHours:    req.SleepHours,
		Notes:         req.Notes,
	}

	if errs := vitals.Validate(rec); len(errs) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "validation failed", "details": errs})
	}

	// Flags are always recomputed here; client-supplied flags are ignored.
	vitals.Annotate(rec)

	if err := s.store.CreateHealthRecord(rec); err != nil {
		s.logger.Error("Failed to create health record", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create health record"})
	}

	for _, flag := range rec.AlertFlags {
		metrics.AbnormalReadings.WithLabelValues(flag).Inc()
	}

	return c.Status(201).JSON(rec)
}

func (s *Server) handleListHealthRecords(c *fiber.Ctx) error {
	userID := c.Params("userId")
	days := c.QueryInt("days", 30)

	records, err := s.store.ListHealthRecords(userID,
		time.Now().AddDate(0, 0, -days), time.Time{}, 100)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list health records"})
	}
	return c.JSON(records)
}

// handleHealthTrends returns vitals as an ascending day series for charting
func (s *Server) handleHealthTrends(c *fiber.Ctx) error {
	userID := c.Params("userId")
	days := c.QueryInt("days", 30)
	if days <= 0 || days > 365 {
		return c.Status(400).JSON(fiber.Map{"error": "days must be between 1 and 365"})
	}

	records, err := s.store.ListHealthRecords(userID,
		time.Now().AddDate(0, 0, -days), time.Time{}, 1000)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load health records"})
	}

	// ListHealthRecords returns newest first; trends chart oldest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return c.JSON(fiber.Map{"days": days, "trends": records})
}

func (s *Server) handleRisk(c *fiber.Ctx) error {
	userID := c.Params("userId")

	records, err := s.store.ListHealthRecords(userID, time.Time{}, time.Time{}, 1)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load health records"})
	}
	var latest *store.HealthRecord
	if len(records) > 0 {
		latest = &records[0]
	}

	intakes, err := s.store.GetIntakesSince(userID, time.Now().AddDate(0, 0, -30))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load intakes"})
	}
	summary := adherence.Compute(intakes)

	assessment := s.risk.Assess(c.Context(), latest, summary.AdherenceRate)
	return c.JSON(assessment)
}

func (s *Server) handleListAlerts(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	if userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "invalid token subject"})
	}

	alertList, err := s.store.GetActiveAlertsFor(userID)
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list alerts"})
	}
	return c.JSON(alertList)
}

func (s *Server) handleAcknowledgeAlert(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	alertID := c.Params("id")

	alert, err := s.store.GetAlert(alertID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load alert"})
	}
	if alert == nil {
		return c.Status(404).JSON(fiber.Map{"error": "alert not found"})
	}
	if alert.UserID != userID && !alert.IsRecipient(userID) {
		return c.Status(403).JSON(fiber.Map{"error": "not a recipient of this alert"})
	}

	acked, err := s.store.AcknowledgeAlert(alertID, userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to acknowledge alert"})
	}
	return c.JSON(acked)
}

func (s *Server) handleSweep(c *fiber.Ctx) error {
	results, err := s.sweeper.Run(c.Context())
	if err != nil {
		s.logger.Error("Manual sweep failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "sweep failed"})
	}
	return c.JSON(fiber.Map{"alerts_generated": len(results), "results": results})
}
