package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/services"
	backupinfra "parley/internal/infrastructure/backup"
	"parley/internal/infrastructure/repositories"
	"parley/pkg/backup"
	"parley/pkg/config"
	"parley/pkg/logger"

	"go.uber.org/zap"
)

const usage = `parleyctl - operator tooling

Commands:
  backup list                list archives in the backup directory
  backup create              snapshot the current chat state
  backup restore <name>      restore an archive
  backup find <RFC3339 time> print the newest archive at or before the given time
  token <identity> <user>    mint an access token

Flags:
  -config path      config file (default configs/config.yaml)
  -overwrite        overwrite existing entities on restore
  -skip-messages    skip message history on restore
`

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	overwrite := flag.Bool("overwrite", false, "overwrite existing entities on restore")
	skipMessages := flag.Bool("skip-messages", false, "skip message history on restore")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	log := logger.New("warn", cfg.Logging.Format)
	defer log.Sync()

	ctx := context.Background()

	switch args[0] {
	case "backup":
		if len(args) < 2 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		runBackup(ctx, cfg, log.Sugar(), args[1:], *overwrite, *skipMessages)
	case "token":
		if len(args) != 3 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		runToken(cfg, args[1], args[2])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func runBackup(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger, args []string, overwrite, skipMessages bool) {
	storage, err := backup.NewFileStorage(cfg.Backup.Dir)
	if err != nil {
		fatal("failed to open backup storage: %v", err)
	}
	service := backup.NewBackupService(storage, "1")

	openRepos := func() *repositories.RepositoryFactory {
		repos, err := repositories.NewRepositoryFactory(cfg, sugar)
		if err != nil {
			fatal("failed to initialize repositories: %v", err)
		}
		return repos
	}

	switch args[0] {
	case "list":
		names, err := service.ListBackups(ctx)
		if err != nil {
			fatal("failed to list backups: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}

	case "create":
		repos := openRepos()
		defer repos.Close()

		scheduler := backupinfra.NewScheduler(service, repos, nil, backupinfra.Config{
			Interval:      cfg.Backup.Interval,
			RetentionDays: cfg.Backup.RetentionDays,
		}, sugar)
		scheduler.RunOnce(ctx)

	case "restore":
		if len(args) != 2 {
			fatal("backup restore needs an archive name")
		}
		repos := openRepos()
		defer repos.Close()

		restore := backupinfra.NewRestoreService(service, repos, sugar)
		options := backupinfra.DefaultRestoreOptions()
		options.OverwriteExisting = overwrite
		options.RestoreMessages = !skipMessages
		if err := restore.RestoreFromBackup(ctx, args[1], options); err != nil {
			fatal("restore failed: %v", err)
		}
		fmt.Println("restore complete")

	case "find":
		if len(args) != 2 {
			fatal("backup find needs an RFC3339 timestamp")
		}
		target, err := time.Parse(time.RFC3339, args[1])
		if err != nil {
			fatal("invalid timestamp: %v", err)
		}
		repos := openRepos()
		defer repos.Close()

		restore := backupinfra.NewRestoreService(service, repos, sugar)
		name, err := restore.FindBackupByTime(ctx, target)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(name)

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func runToken(cfg *config.Config, identityID, username string) {
	identity := services.NewIdentityService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Bootstrap.Admins)
	token, err := identity.Issue(domain.IdentityID(identityID), username)
	if err != nil {
		fatal("failed to issue token: %v", err)
	}
	fmt.Println(token)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
