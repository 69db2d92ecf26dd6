package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/database"
	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
	"github.com/argus-sec/argus/internal/version"
)

// Exit codes for gate verdicts so shell callers can branch on them.
const (
	exitAllowed     = 0
	exitRateLimited = 2
	exitBlocked     = 3
)

type ctlContext struct {
	db        *gorm.DB
	limiter   *services.RateLimitService
	abuse     *services.AbuseService
	lists     *services.IPListService
	responder *services.ResponseService
}

func main() {
	logger.Init(false, os.Stderr)

	var (
		ctl      ctlContext
		endpoint string
		apiKey   string
		ttl      int
		reason   string
		noRecord bool
	)

	root := &cobra.Command{
		Use:     "argusctl",
		Short:   "Synchronous gate and operational tooling for the Argus security subsystem",
		Version: version.Full(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(
				&models.SecurityEvent{}, &models.IPListEntry{},
				&models.Alert{}, &models.AlertChannel{}, &models.Setting{},
			); err != nil {
				return err
			}

			events := services.NewEventService(db)
			lists := services.NewIPListService(db)
			alerts := services.NewAlertService(db)
			ctl = ctlContext{
				db:        db,
				limiter:   services.NewRateLimitService(events, lists, cfg.Thresholds),
				abuse:     services.NewAbuseService(events, lists, cfg.Thresholds),
				lists:     lists,
				responder: services.NewResponseService(lists, events, alerts, cfg.Thresholds),
			}
			return nil
		},
		SilenceUsage: true,
	}

	check := &cobra.Command{
		Use:   "check <ip>",
		Short: "Evaluate the gate for an IP and record the request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, err := ctl.limiter.Check(args[0], endpoint, apiKey)
			if err != nil {
				return err
			}
			if !noRecord {
				_ = ctl.limiter.Record(args[0], endpoint, apiKey, "", 0)
				if decision.Outcome == services.OutcomeRateLimited {
					_ = ctl.limiter.RecordDenied(args[0], endpoint, apiKey)
				}
			}
			fmt.Println(decision.Outcome)
			switch decision.Outcome {
			case services.OutcomeRateLimited:
				os.Exit(exitRateLimited)
			case services.OutcomeBlocked:
				os.Exit(exitBlocked)
			}
			return nil
		},
	}
	check.Flags().StringVar(&endpoint, "endpoint", "", "endpoint the request targets")
	check.Flags().StringVar(&apiKey, "api-key", "", "API key presented by the client")
	check.Flags().BoolVar(&noRecord, "no-record", false, "evaluate only, do not record the request")

	record := &cobra.Command{
		Use:   "record <ip>",
		Short: "Record a request observation without evaluating the gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctl.limiter.Record(args[0], endpoint, apiKey, "", 0)
		},
	}
	record.Flags().StringVar(&endpoint, "endpoint", "", "endpoint the request targets")
	record.Flags().StringVar(&apiKey, "api-key", "", "API key presented by the client")

	stats := &cobra.Command{
		Use:   "stats <ip>",
		Short: "Show current sliding-window counts for an IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctl.limiter.Stats(args[0])
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(s)
		},
	}

	reset := &cobra.Command{
		Use:   "reset <ip>",
		Short: "Delete counted events for an IP (optionally one endpoint)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := ctl.limiter.Reset(args[0], endpoint)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d events\n", removed)
			return nil
		},
	}
	reset.Flags().StringVar(&endpoint, "endpoint", "", "limit the reset to one endpoint")

	analyze := &cobra.Command{
		Use:   "analyze <ip>",
		Short: "Run abuse analysis for an IP and escalate findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := ctl.abuse.Analyze(args[0])
			if err != nil {
				return err
			}
			if report.Abusive() {
				if err := ctl.responder.RespondToReport(report); err != nil {
					logger.Log().Warnf("escalation failed: %v", err)
				}
			}
			return json.NewEncoder(os.Stdout).Encode(report)
		},
	}

	block := &cobra.Command{
		Use:   "block <ip>",
		Short: "Manually blacklist an IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				reason = "manual block"
			}
			entry, err := ctl.lists.BlacklistAdd(args[0], ttl, reason)
			if err != nil {
				return err
			}
			if entry.ExpiresAt != nil {
				fmt.Printf("blocked %s until %s\n", args[0], entry.ExpiresAt.Format("2006-01-02 15:04:05"))
			} else {
				fmt.Printf("blocked %s permanently\n", args[0])
			}
			return nil
		},
	}
	block.Flags().IntVar(&ttl, "ttl", 0, "block duration in minutes, 0 = permanent")
	block.Flags().StringVar(&reason, "reason", "", "reason recorded on the entry")

	unblock := &cobra.Command{
		Use:   "unblock <ip>",
		Short: "Remove an IP's active blacklist entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctl.lists.Remove(args[0], models.ListTypeBlacklist); err != nil {
				return err
			}
			fmt.Printf("unblocked %s\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list [whitelist|blacklist]",
		Short: "Enumerate active access list entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listType := ""
			if len(args) == 1 {
				listType = args[0]
			}
			entries, err := ctl.lists.List(listType)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(entries)
		},
	}

	root.AddCommand(check, record, stats, reset, analyze, block, unblock, list)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
