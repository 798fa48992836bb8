package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/term"

	"pgscope/internal/api"
	"pgscope/internal/config"
	"pgscope/internal/core"
	"pgscope/internal/data"
	"pgscope/internal/logger"
	"pgscope/internal/postgres"
	"pgscope/internal/service"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "add-instance":
			handleAddInstance(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		default:
			fmt.Printf("Unknown command: %s\n", os.Args[1])
			printHelp()
			os.Exit(1)
		}
	}

	startServer()
}

func printHelp() {
	fmt.Println("pgscope - PostgreSQL query performance watcher")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pgscope                Start the server")
	fmt.Println("  pgscope add-instance   Register an instance (interactive password)")
	fmt.Println("  pgscope help           Show this help")
}

func handleAddInstance(args []string) {
	fs := flag.NewFlagSet("add-instance", flag.ExitOnError)
	name := fs.String("name", "", "Display name for the instance")
	host := fs.String("host", "", "PostgreSQL host")
	port := fs.Int("port", 5432, "PostgreSQL port")
	dbname := fs.String("dbname", "", "Database name")
	user := fs.String("user", "", "Database user")
	sslMode := fs.String("sslmode", "prefer", "SSL mode")
	fs.Parse(args)

	if *name == "" || *host == "" || *dbname == "" || *user == "" {
		fmt.Println("Usage: pgscope add-instance -name <name> -host <host> -dbname <db> -user <user> [-port 5432] [-sslmode prefer]")
		os.Exit(1)
	}

	// Interactive password input (hidden)
	fmt.Print("Password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Printf("Failed to read password: %v\n", err)
		os.Exit(1)
	}
	if len(passBytes) == 0 {
		fmt.Println("Password cannot be empty.")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := data.Open(cfg.DBPath)
	if err != nil {
		fmt.Printf("Failed to init database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	vault, err := service.NewVault(cfg.VaultKey)
	if err != nil {
		fmt.Printf("Failed to init credential vault: %v\n", err)
		os.Exit(1)
	}
	enc, err := vault.Encrypt(string(passBytes))
	if err != nil {
		fmt.Printf("Failed to encrypt password: %v\n", err)
		os.Exit(1)
	}

	inst := &core.Instance{
		Name:        *name,
		Host:        *host,
		Port:        *port,
		DBName:      *dbname,
		User:        *user,
		PasswordEnc: enc,
		SSLMode:     *sslMode,
	}
	if err := data.NewInstanceRepo(db).Create(inst); err != nil {
		fmt.Printf("Failed to create instance: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Instance '%s' registered with id %d. Run check-setup to verify readiness.\n", inst.Name, inst.ID)
}

func startServer() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\nCheck .env file or PGSCOPE_KEY environment variable.\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Flush(log)
	log.Info("starting pgscope")

	db, err := data.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}
	defer db.Close()

	instanceRepo := data.NewInstanceRepo(db)
	stateRepo := data.NewSetupStateRepo(db)
	snapshotRepo := data.NewSnapshotRepo(db)
	recRepo := data.NewRecommendationRepo(db)

	vault, err := service.NewVault(cfg.VaultKey)
	if err != nil {
		log.Fatal("init credential vault", zap.Error(err))
	}

	engine := service.NewRecommendationEngine(recRepo)
	collector := service.NewCollector(vault, snapshotRepo, engine, postgres.HarvestOptions{
		Limit:          cfg.CollectLimit,
		MinCalls:       cfg.CollectMinCalls,
		MinTotalTimeMs: cfg.CollectMinTotalTimeMs,
		KeepRawQuery:   cfg.StoreFullQueryText,
	}, cfg.CollectTimeout, log)

	scheduler := service.NewScheduler(stateRepo, instanceRepo, collector, cfg.CollectorInterval, log)
	scheduler.Start()

	apiHandler := api.NewHandler(instanceRepo, stateRepo, snapshotRepo, recRepo, vault, collector, log)
	apiLimiter := api.NewRateLimiter(60, 10, log)

	r := chi.NewRouter()
	r.Use(api.RequestLogger(log))
	r.Route("/api", func(r chi.Router) {
		r.Use(apiLimiter.Middleware)
		r.Use(api.RequireAPIKey(cfg.APIKey))
		r.Mount("/", apiHandler.Routes())
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("server listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server startup failed", zap.Error(err))
		}
	}()

	<-stop
	log.Info("shutting down")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
