package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"fieldengine/internal/admin"
	"fieldengine/internal/auth"
	"fieldengine/internal/config"
	"fieldengine/internal/engine"
	"fieldengine/internal/fieldtype"
	"fieldengine/internal/form"
	"fieldengine/internal/instrument"
	"fieldengine/internal/metadata"
	"fieldengine/internal/storage"
	"fieldengine/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, driver: %s, db: %s)", cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Instrumentation
	var events *instrument.EventBuffer
	if cfg.Instrumentation.Enabled {
		events = instrument.NewEventBuffer(db.DB, db.Dialect, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer events.Stop()
		instrument.StartCleanup(ctx, db.DB, db.Dialect, cfg.Instrumentation.RetentionDays)
	}

	// 5. Host entity lookups and projections
	lookups, projector, err := entityBindings(ctx, db, cfg.Entities)
	if err != nil {
		log.Fatalf("Invalid entities config: %v", err)
	}

	// 6. Field engine
	locale := fieldtype.ParseLocale(cfg.Fields.Locale, cfg.Fields.DefaultCurrency)
	svc := engine.New(db, engine.Options{Lookups: lookups, Projector: projector, Locale: &locale})

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, events))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Auth routes (no auth required)
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(cfg.Auth, cfg.JWTSecret))

	// 10. Auth middleware for all protected routes
	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()
	writerMW := auth.RequireWriter()
	userMW := instrument.UserMiddleware()

	// 11. Admin routes (auth + admin required). Registered before the value
	// routes so /api/_admin is not captured by /api/:entityType.
	var eventHandler *instrument.EventHandler
	if cfg.Instrumentation.Enabled {
		eventHandler = instrument.NewEventHandler(db.DB, db.Dialect)
	}
	admin.RegisterAdminRoutes(app, admin.NewHandler(svc.Definitions, eventHandler), authMW, adminMW, userMW)

	// 12. Schema and form routes (auth required)
	form.RegisterFormRoutes(app, form.NewHandler(svc), authMW, userMW)

	// 13. File field uploads (auth required, uploads need the writer role)
	files := storage.NewLocalStorage(cfg.Storage.Path)
	storage.RegisterFileRoutes(app, storage.NewHandler(svc, files, cfg.Storage.MaxSizeMB<<20), authMW, writerMW, userMW)

	// 14. Custom field value routes (auth required, writes need the writer role)
	engine.RegisterValueRoutes(app, engine.NewHandler(svc), authMW, writerMW, userMW)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("ERROR: shutdown: %v", err)
		}
	}()

	// 15. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("ERROR: server stopped: %v", err)
	}
}

// entityBindings builds the existence lookups and JSON projections declared
// under entities in the config.
func entityBindings(ctx context.Context, db *store.Store, entities map[string]config.EntityConfig) (engine.Lookups, engine.Projector, error) {
	lookups := engine.Lookups{}
	targets := map[metadata.EntityType]engine.ProjectionTarget{}
	for name, ec := range entities {
		et := metadata.EntityType(name)
		if !et.Valid() {
			return nil, nil, fmt.Errorf("unknown entity type %q", name)
		}
		if ec.Table == "" {
			continue
		}
		lookup, err := engine.NewTableLookup(ctx, db, ec.Table, ec.IDColumn)
		if err != nil {
			return nil, nil, err
		}
		lookups[et] = lookup
		if ec.ProjectionColumn != "" {
			targets[et] = engine.ProjectionTarget{Table: ec.Table, IDColumn: ec.IDColumn, Column: ec.ProjectionColumn}
		}
	}
	if len(targets) == 0 {
		return lookups, nil, nil
	}
	projector, err := engine.NewTableProjector(db.Dialect, targets)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Projecting custom fields for %d entity type(s)", len(targets))
	return lookups, projector, nil
}
