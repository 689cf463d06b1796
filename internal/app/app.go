package app

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/kaanbsaglam/studyai-backend/internal/http/handlers"
	"github.com/kaanbsaglam/studyai-backend/internal/modules/studygen"
	"github.com/kaanbsaglam/studyai-backend/internal/platform/logger"
	"github.com/kaanbsaglam/studyai-backend/internal/platform/openai"
	"github.com/kaanbsaglam/studyai-backend/internal/server"
)

type App struct {
	Log          *logger.Logger
	Cfg          Config
	AI           openai.Client
	Orchestrator *studygen.Orchestrator
	Router       *gin.Engine
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	ai, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	policies, err := loadPolicies(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	orch := studygen.NewOrchestrator(ai, policies, log)

	router := server.NewRouter(server.RouterConfig{
		GenerateHandler:  handlers.NewGenerateHandler(log, orch),
		AllowOrigins:     cfg.AllowOrigins,
		AllowCredentials: cfg.AllowCredentials,
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		AI:           ai,
		Orchestrator: orch,
		Router:       router,
	}, nil
}

func loadPolicies(cfg Config, log *logger.Logger) (studygen.PolicySource, error) {
	tiers := studygen.DefaultPolicies()
	baseline := cfg.BaselineTier

	if cfg.PolicyFile != "" {
		fileTiers, fileBaseline, err := studygen.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load tier policies: %w", err)
		}
		tiers = fileTiers
		if fileBaseline != "" {
			baseline = fileBaseline
		}
		log.Info("Loaded tier policies from file", "path", cfg.PolicyFile, "tiers", len(tiers))
	}

	src, err := studygen.NewStaticPolicySource(tiers, baseline)
	if err != nil {
		return nil, fmt.Errorf("build policy source: %w", err)
	}
	return src, nil
}

func (a *App) Run() error {
	a.Log.Info("Starting server", "port", a.Cfg.Port)
	return a.Router.Run(":" + a.Cfg.Port)
}
