package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/korjavin/warbot/pkg/card"
	"github.com/korjavin/warbot/pkg/commands"
	"github.com/korjavin/warbot/pkg/config"
	"github.com/korjavin/warbot/pkg/logger"
	"github.com/korjavin/warbot/pkg/messages"
	"github.com/korjavin/warbot/pkg/openai"
	"github.com/korjavin/warbot/pkg/ranks"
	"github.com/korjavin/warbot/pkg/roblox"
	"github.com/korjavin/warbot/pkg/scheduler"
	"github.com/korjavin/warbot/pkg/storage"
	"github.com/korjavin/warbot/pkg/telegram"
	"github.com/korjavin/warbot/pkg/war"
	"github.com/korjavin/warbot/pkg/wartime"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

var envFile string

func main() {
	app := cli.NewApp()
	app.Name = "warbot"
	app.Usage = "clan war scheduler and stats card bot for Telegram"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "env-file, e",
			Value:       ".env",
			Usage:       "dotenv file loaded before reading the environment",
			Destination: &envFile,
		},
	}
	app.Action = run
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "start the bot (default)",
			Action: run,
		},
		{
			Name:  "wars",
			Usage: "print the wars persisted in the data directory",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "data-dir, d",
					Value:  "./data",
					Usage:  "BadgerDB directory",
					EnvVar: "DATA_DIR",
				},
			},
			Action: listWars,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Global.Error("%v", err)
		os.Exit(1)
	}
}

func run(_ *cli.Context) error {
	log := logger.Global
	log.Info("Starting war bot...")

	cfg, err := config.LoadFromEnv(envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Configure(os.Stdout, cfg.LogLevel)

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	if err := store.StartGCSchedule(cfg.StoreGCSchedule); err != nil {
		return err
	}
	wars := storage.NewWarStore(store)

	loc := wartime.Location(cfg.WarTZOffsetHours)
	var generator messages.Generator
	if cfg.OpenAIAPIKey != "" {
		generator = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIAPIBase, cfg.OpenAIModel)
	}
	messageService := messages.New(generator, loc.String())

	bot, err := telegram.New(cfg.BotToken)
	if err != nil {
		return err
	}

	sched := scheduler.New(wars, war.NewAnnouncer(bot, messageService))
	defer sched.Stop()
	report, err := sched.Start()
	if err != nil {
		return fmt.Errorf("failed to recover wars: %w", err)
	}
	log.Info("Recovered wars: %d re-armed, %d missed", len(report.Rearmed), len(report.Missed))
	for _, missed := range report.Missed {
		log.Warn("Dropped missed war of server %d against %s at %s", missed.ServerID, missed.Opponent, missed.DisplayTime)
	}
	for _, armed := range sched.Armed() {
		log.Debug("Armed war of server %d fires at %s", armed.ServerID, armed.FireAt.Format(time.RFC3339))
	}

	handler := commands.New(
		bot,
		cfg,
		war.New(sched, wars, loc),
		ranks.New(store, catalog),
		roblox.New(cfg.RobloxRatePerSec),
		card.NewRenderer(afero.NewOsFs(), cfg.AssetsDir, catalog),
		messageService,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Bot is running as @%s. Press Ctrl+C to stop.", bot.Username())
	if err := bot.Start(ctx, handler.Commands(), nil); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("Shutting down...")
	return nil
}

func listWars(c *cli.Context) error {
	store, err := storage.New(c.String("data-dir"))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	all, err := storage.NewWarStore(store).Load()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("no wars scheduled")
		return nil
	}

	ids := make([]int64, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		w := all[id]
		fmt.Printf("%d\t%s\tvs %s\t%s\t%d fighters\ttoken %s\n",
			id, w.FireAt.Format("2006-01-02 15:04 -07:00"), w.Opponent, w.DisplayTime, len(w.Participants), w.Token)
	}
	return nil
}
