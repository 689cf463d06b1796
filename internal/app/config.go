package app

import (
	"strings"

	"github.com/kaanbsaglam/studyai-backend/internal/platform/logger"
	"github.com/kaanbsaglam/studyai-backend/internal/utils"
)

type Config struct {
	Port             string
	PolicyFile       string
	BaselineTier     string
	AllowOrigins     []string
	AllowCredentials bool
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	policyFile := utils.GetEnv("TIER_POLICY_FILE", "", log)
	baselineTier := utils.GetEnv("BASELINE_TIER", "standard", log)
	allowCredentials := utils.GetEnvAsBool("CORS_ALLOW_CREDENTIALS", true, log)

	var origins []string
	for _, o := range strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Port:             port,
		PolicyFile:       policyFile,
		BaselineTier:     baselineTier,
		AllowOrigins:     origins,
		AllowCredentials: allowCredentials,
	}
}
