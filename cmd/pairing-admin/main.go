package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/docpair/internal/cadence"
	"github.com/docpair/internal/config"
	"github.com/docpair/internal/db"
	"github.com/docpair/internal/match"
	"github.com/docpair/internal/pairing"
	"github.com/docpair/internal/store"
)

func main() {
	logger := logrus.New()
	log := logrus.NewEntry(logger)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	root := &cobra.Command{
		Use:   "pairing-admin",
		Short: "Operational tooling for the document pairing service",
	}
	root.AddCommand(
		migrateCmd(cfg, log),
		cadenceCmd(cfg, log),
		trainCmd(cfg, log),
		reevaluateCmd(cfg, log),
		seedCmd(cfg, log),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(cfg *config.Config) (*sql.DB, error) {
	return db.Connect(cfg.Database)
}

func migrateCmd(cfg *config.Config, log *logrus.Entry) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			return db.Migrate(conn, log)
		},
	}
}

func cadenceCmd(cfg *config.Config, log *logrus.Entry) *cobra.Command {
	return &cobra.Command{
		Use:   "cadence-stats",
		Short: "Recompute per-supplier delivery cadence statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			st := store.NewPostgres(conn)
			written, err := cadence.Recompute(cmd.Context(), st, log)
			if err != nil {
				return err
			}
			log.WithField("groups", written).Info("cadence stats recomputed")
			return nil
		},
	}
}

func trainCmd(cfg *config.Config, log *logrus.Entry) *cobra.Command {
	var minSamples int
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the ranking model from the pairing event ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			st := store.NewPostgres(conn)
			raw, err := st.TrainingExamples(cmd.Context())
			if err != nil {
				return err
			}

			samples := make([]match.TrainingSample, 0, len(raw))
			for _, ex := range raw {
				fv, err := match.DecodeFeatureVector(ex.FeatureVectorJSON)
				if err != nil {
					log.WithError(err).Warn("skipping undecodable training vector")
					continue
				}
				samples = append(samples, match.TrainingSample{Features: fv, Positive: ex.Positive})
			}

			model, err := match.Train(samples, minSamples)
			if errors.Is(err, match.ErrInsufficientSamples) {
				log.WithError(err).Warn("not enough labeled events yet")
				return nil
			}
			if err != nil {
				return err
			}
			if err := model.Save(cfg.Model.Path); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"version": model.Version,
				"samples": model.Samples,
				"path":    cfg.Model.Path,
			}).Info("model trained")
			return nil
		},
	}
	cmd.Flags().IntVar(&minSamples, "min-samples", cfg.Model.MinSamples, "minimum labeled examples required")
	return cmd
}

func reevaluateCmd(cfg *config.Config, log *logrus.Entry) *cobra.Command {
	var (
		invoiceIDs   []string
		statusFilter []string
	)
	cmd := &cobra.Command{
		Use:   "re-evaluate",
		Short: "Re-score invoices by id or pairing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			st := store.NewPostgres(conn)
			model, err := match.LoadModel(cfg.Model.Path)
			if err != nil {
				return err
			}
			svc := pairing.New(st, model, pairing.Config{
				DateWindowDays:      cfg.Matching.DateWindowDays,
				AutoPairThreshold:   cfg.Matching.AutoPairThreshold,
				SuggestionThreshold: cfg.Matching.SuggestionThreshold,
				BatchWorkers:        cfg.Matching.BatchWorkers,
			}, log)

			results, err := svc.BatchReevaluate(cmd.Context(), invoiceIDs, statusFilter)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Error != "" {
					fmt.Printf("%s  error: %s\n", r.InvoiceID, r.Error)
					continue
				}
				fmt.Printf("%s  %s\n", r.InvoiceID, r.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&invoiceIDs, "ids", nil, "comma-separated invoice ids")
	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "pairing statuses to select (e.g. unpaired,suggested)")
	return cmd
}

func seedCmd(cfg *config.Config, log *logrus.Entry) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert a small demo dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			return seed(cmd.Context(), store.NewPostgres(conn), log)
		},
	}
}

func seed(ctx context.Context, st *store.Postgres, log *logrus.Entry) error {
	supplierID, err := st.CreateSupplier(ctx, "Acme Foods Ltd", "ACME FOODS", []string{"ACME FOOD SERVICES"})
	if err != nil {
		return err
	}

	mkDoc := func(docType string, day time.Time, total float64) *store.Document {
		return &store.Document{
			ID:          uuid.NewString(),
			DocType:     docType,
			SupplierRaw: "Acme Foods Ltd",
			SupplierID:  &supplierID,
			DocDate:     &day,
			TotalAmount: decimal.NewFromFloat(total),
			Currency:    "GBP",
		}
	}
	items := []store.LineItem{
		{Description: "Chicken Breast 1kg", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromFloat(6.50), LineTotal: decimal.NewFromFloat(65.00)},
		{Description: "Beef Mince 5kg", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromFloat(27.50), LineTotal: decimal.NewFromFloat(55.00)},
	}

	base := time.Now().UTC().Truncate(24 * time.Hour)
	invoice := mkDoc(store.DocTypeInvoice, base, 120.00)
	note := mkDoc(store.DocTypeDeliveryNote, base.AddDate(0, 0, -1), 120.00)

	if err := st.CreateDocument(ctx, invoice, items); err != nil {
		return err
	}
	if err := st.CreateDocument(ctx, note, items); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"supplier":      supplierID,
		"invoice":       invoice.ID,
		"delivery_note": note.ID,
	}).Info("demo data inserted")
	return nil
}
