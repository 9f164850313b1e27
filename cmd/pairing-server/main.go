package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/docpair/internal/config"
	"github.com/docpair/internal/db"
	"github.com/docpair/internal/match"
	"github.com/docpair/internal/pairing"
	"github.com/docpair/internal/resolver"
	"github.com/docpair/internal/store"
	"github.com/docpair/internal/web"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.NewEntry(logger)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}

	if err := db.Migrate(conn, log); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	model, err := match.LoadModel(cfg.Model.Path)
	if err != nil {
		log.WithError(err).Fatal("model load failed")
	}
	if model != nil {
		log.WithField("version", model.Version).Info("ranking model loaded")
	} else {
		log.Info("no ranking model, using deterministic scorer only")
	}

	st := store.NewPostgres(conn)
	res := resolver.New(st, resolver.NewHashEmbedder(64),
		cfg.Matching.ResolverAutoMatch, cfg.Matching.ResolverReviewFloor, log)
	svc := pairing.New(st, model, pairing.Config{
		DateWindowDays:      cfg.Matching.DateWindowDays,
		AutoPairThreshold:   cfg.Matching.AutoPairThreshold,
		SuggestionThreshold: cfg.Matching.SuggestionThreshold,
		BatchWorkers:        cfg.Matching.BatchWorkers,
	}, log)

	server := web.NewServer(cfg.Server, conn, st, svc, res, log)
	if err := server.Start(); err != nil {
		log.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
}
