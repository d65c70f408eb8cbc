package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ikkim/marketplace-ingest/config"
	"github.com/ikkim/marketplace-ingest/internal/app"
	"github.com/ikkim/marketplace-ingest/internal/db"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/internal/storage"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"github.com/ikkim/marketplace-ingest/pkg/util"
)

// scrape runs selector profiles once and prints the run summaries as JSON.
//
//	go run ./cmd/scrape -site gold-shop
//	go run ./cmd/scrape -all
func main() {
	site := flag.String("site", "", "comma separated sites to scrape")
	all := flag.Bool("all", false, "scrape every configured site")
	list := flag.Bool("list", false, "list configured sites and exit")
	profilesPath := flag.String("profiles", "", "selector profile file or directory (default SCRAPER_PROFILES_PATH)")
	actor := flag.String("actor", "", "actor recorded on created/updated rows (default SCRAPER_ACTOR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}
	logger.Initialize(logger.Config{
		Level:       cfg.Server.LogLevel,
		Format:      "console",
		Output:      os.Stderr,
		EnableColor: true,
	})

	if *profilesPath != "" {
		cfg.Scraper.ProfilesPath = *profilesPath
	}
	if *actor != "" {
		cfg.Scraper.Actor = *actor
	}

	profiles, err := scraper.LoadProfiles(cfg.Scraper.ProfilesPath)
	if err != nil {
		logger.Fatal("Failed to load scrape profiles", err)
	}
	if *list {
		for _, s := range profiles.Sites() {
			fmt.Println(s)
		}
		return
	}

	var sites []string
	switch {
	case *all:
	case *site != "":
		for _, s := range strings.Split(*site, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sites = append(sites, s)
			}
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := app.Options{DB: db.GetDB(), Profiles: profiles}
	if cfg.Geocode.KakaoAPIKey != "" {
		opts.Geocoder = util.NewKakaoGeocoder(cfg.Geocode.KakaoAPIKey)
	}
	if cfg.S3.Enabled {
		opts.Mirror = storage.NewS3Storage(cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, cfg.S3.BaseURL, cfg.S3.Folder)
	}
	if cfg.Browser.Enabled {
		browser, err := scraper.NewBrowserFetcher(scraper.BrowserOptions{
			BinPath:     cfg.Browser.BinPath,
			Headless:    cfg.Browser.Headless,
			UserAgent:   cfg.Scraper.UserAgent,
			PageTimeout: cfg.Browser.PageTimeout,
			IdleTimeout: cfg.Browser.IdleTimeout,
		})
		if err != nil {
			logger.Error("Failed to start headless browser", err)
		} else {
			opts.Browser = browser
			defer browser.Close()
		}
	}

	application := app.New(ctx, cfg, opts)
	summaries, runErr := application.Scrape.RunAll(ctx, sites, cfg.Scraper.Actor)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		logger.Error("Failed to encode summaries", err)
	}

	if runErr != nil {
		logger.Error("Scrape finished with errors", runErr)
		os.Exit(1)
	}
}
