package main

import (
	"github.com/carelens-ai/platform/pkg/common/config"
	"github.com/carelens-ai/platform/pkg/common/database"
	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/validation"
)

func main() {
	logger.Init("rule-seeder")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}

	if err := db.AutoMigrate(&validation.ValidationRule{}, &validation.ValidationResult{}); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate validation tables")
	}

	specs := validation.LoadRuleSpecs(cfg.ValidationRulesPath)
	seeded, err := validation.SeedRules(db, specs)
	if err != nil {
		logger.Log.WithField("seeded", seeded).WithError(err).Fatal("Rule seeding failed")
	}

	logger.Log.WithField("seeded", seeded).Info("Validation rules seeded")
}
