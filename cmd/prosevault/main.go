package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prosevault/prosevault/internal/archive"
	"github.com/prosevault/prosevault/internal/config"
	"github.com/prosevault/prosevault/internal/database"
	"github.com/prosevault/prosevault/internal/logging"
	"github.com/prosevault/prosevault/internal/story"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "prosevault",
		Short: "Versioned narrative store with checksummed backups",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		backupCommand(),
		restoreCommand(),
		backupsCommand(),
		pruneCommand(),
		scheduleCommand(),
		statsCommand(),
		checkCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("backup-dir", defaults.GetString("backup.dir"), "Backup output directory")
	cmd.PersistentFlags().Bool("compress", defaults.GetBool("backup.compress"), "Gzip backup files")
	cmd.PersistentFlags().Int("max-backups", defaults.GetInt("backup.max_to_keep"), "Completed backups to retain per scope")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error, quiet)")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "backup.dir", "backup-dir")
	bindFlag(cmd, "backup.compress", "compress")
	bindFlag(cmd, "backup.max_to_keep", "max-backups")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

type app struct {
	cfg      config.AppConfig
	logger   *zap.Logger
	repo     *story.Repository
	backups  *archive.Manager
	recovery *archive.Recovery
	close    func()
}

func bootstrap() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	repo, err := story.NewRepository(story.Config{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}
	backups, err := archive.NewManager(archive.ManagerConfig{
		Repository: repo,
		Logger:     logger,
		Options: archive.Options{
			Dir:                 cfg.BackupDir,
			Compress:            cfg.Compress,
			IncludeProse:        cfg.IncludeProse,
			EngineSnapshot:      cfg.EngineSnapshot,
			EnginePath:          cfg.DatabasePath,
			MaxBackupsToKeep:    cfg.MaxBackupsToKeep,
			IncrementalFallback: cfg.IncrementalFallback,
		},
	})
	if err != nil {
		return nil, err
	}
	recovery, err := archive.NewRecovery(archive.RecoveryConfig{Repository: repo, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		backups:  backups,
		recovery: recovery,
		close: func() {
			_ = sqlDB.Close()
			_ = logger.Sync()
		},
	}, nil
}

func backupCommand() *cobra.Command {
	var (
		projectID   string
		description string
		sinceFlag   string
		sceneIDs    []string
		sequenceID  string
	)

	cmd := &cobra.Command{
		Use:       "backup {full|incremental|scenes|sequence}",
		Short:     "Create a backup",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"full", "incremental", "scenes", "sequence"},
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap()
			if err != nil {
				return err
			}
			defer application.close()

			ctx := cmd.Context()
			var record *archive.BackupRecord
			switch args[0] {
			case "full":
				record, err = application.backups.BackupFull(ctx, projectID, description)
			case "incremental":
				var since *time.Time
				if sinceFlag != "" {
					parsed, parseErr := time.Parse(time.RFC3339, sinceFlag)
					if parseErr != nil {
						return fmt.Errorf("invalid --since value %q: %w", sinceFlag, parseErr)
					}
					since = &parsed
				}
				record, err = application.backups.BackupIncremental(ctx, projectID, since, description)
			case "scenes":
				record, err = application.backups.BackupScenes(ctx, projectID, sceneIDs, description)
			case "sequence":
				record, err = application.backups.BackupSequence(ctx, projectID, sequenceID, description)
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%d items\t%d bytes\t%s\n",
				record.ID, record.Type, record.ItemCount, record.SizeBytes, record.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier")
	cmd.Flags().StringVar(&description, "description", "", "Human description for the backup record")
	cmd.Flags().StringVar(&sinceFlag, "since", "", "Incremental cutoff (RFC 3339)")
	cmd.Flags().StringSliceVar(&sceneIDs, "scene", nil, "Scene identifiers (repeatable)")
	cmd.Flags().StringVar(&sequenceID, "sequence", "", "Sequence identifier")
	return cmd
}

func restoreCommand() *cobra.Command {
	var (
		targetProject string
		overwrite     bool
	)

	cmd := &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore a backup into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap()
			if err != nil {
				return err
			}
			defer application.close()

			report, err := application.recovery.Recover(cmd.Context(), args[0], archive.RecoveryOptions{
				TargetProjectID: targetProject,
				Overwrite:       overwrite,
			})
			if err != nil {
				return err
			}
			printCounts := func(name string, counts archive.Counts) {
				fmt.Printf("%-16s inserted=%d updated=%d skipped=%d\n",
					name, counts.Inserted, counts.Updated, counts.Skipped)
			}
			printCounts("projects", report.Projects)
			printCounts("scenes", report.Scenes)
			printCounts("links", report.Links)
			printCounts("characters", report.Characters)
			printCounts("sequences", report.Sequences)
			printCounts("versions", report.Versions)
			printCounts("validation logs", report.ValidationLogs)
			return nil
		},
	}

	cmd.Flags().StringVar(&targetProject, "target-project", "", "Remap restored entities to this project")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Update entities that already exist")
	return cmd
}

func backupsCommand() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List backup records",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap()
			if err != nil {
				return err
			}
			defer application.close()

			records, err := application.backups.ListBackups(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			for _, record := range records {
				fmt.Printf("%s\t%-11s\t%-11s\t%s\t%d items\t%d bytes\n",
					record.ID, record.Type, record.Status,
					record.CreatedAt.Format(time.RFC3339), record.ItemCount, record.SizeBytes)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Limit to one project")
	return cmd
}

func pruneCommand() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete completed backups beyond the retention limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap()
			if err != nil {
				return err
			}
			defer application.close()

			application.backups.Prune(cmd.Context(), projectID)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Limit to one project")
	return cmd
}

func scheduleCommand() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run recurring full backups until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap()
			if err != nil {
				return err
			}
			defer application.close()

			scheduler, err := archive.NewScheduler(application.backups,
				application.cfg.Schedule, projectID, application.logger)
			if err != nil {
				return err
			}
			scheduler.Start()

			signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-signalCtx.Done()
			scheduler.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Back up one project instead of the whole store")
	return cmd
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <project-id>",
		Short: "Print a project's aggregate report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap()
			if err != nil {
				return err
			}
			defer application.close()

			report, err := application.repo.BuildProjectReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("project %s (%s)\n", report.ProjectID, report.Status)
			for kind, count := range report.ScenesByKind {
				fmt.Printf("  scenes[%s] = %d\n", kind, count)
			}
			fmt.Printf("  words: sum=%.0f avg=%.1f min=%.0f max=%.0f\n",
				report.WordCounts.Sum, report.WordCounts.Avg, report.WordCounts.Min, report.WordCounts.Max)
			fmt.Printf("  links: %d (%.0f%% valid)\n", report.LinkCount, report.ValidLinkRatio*100)
			for linkType, count := range report.LinksByType {
				fmt.Printf("  links[%s] = %d\n", linkType, count)
			}
			return nil
		},
	}
}

func checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <project-id>",
		Short: "Report chain links with stale or dangling scene references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap()
			if err != nil {
				return err
			}
			defer application.close()

			issues, err := application.repo.CheckConsistency(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(issues) == 0 {
				fmt.Println("no consistency issues")
				return nil
			}
			for _, issue := range issues {
				fmt.Printf("link %s %s scene %s: %s\n", issue.LinkID, issue.Role, issue.SceneID, issue.Problem)
			}
			return nil
		},
	}
}
