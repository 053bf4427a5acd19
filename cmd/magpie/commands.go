package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bluesky-social/magpie/crawl"
	"github.com/bluesky-social/magpie/keyword"
	"github.com/bluesky-social/magpie/notify"
	"github.com/bluesky-social/magpie/setstore"

	cli "github.com/urfave/cli/v2"
)

var crawlCmd = &cli.Command{
	Name:  "crawl",
	Usage: "analyze seed accounts, their follows, and follows of curated list members",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "start-users",
			Usage:   "JSON file with the list of seed handles or DIDs",
			Value:   "start_users.json",
			EnvVars: []string{"MAGPIE_START_USERS"},
		},
		&cli.StringFlag{
			Name:    "curated-list",
			Usage:   "AT-URI or bsky.app URL of a list whose members' follows are also crawled",
			EnvVars: []string{"MAGPIE_CURATED_LIST"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "follow edges analyzed concurrently (1 is strictly sequential)",
			Value:   1,
			EnvVars: []string{"MAGPIE_WORKERS"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			EnvVars: []string{"MAGPIE_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "Slack webhook URL to post moderation and suspect additions to",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := slog.Default()

		shutdown, err := configOTEL(ctx, logger)
		if err != nil {
			return err
		}
		defer shutdown()

		if listen := cctx.String("metrics-listen"); listen != "" {
			go func() {
				if err := runMetrics(listen); err != nil {
					logger.Error("metrics endpoint failed", "listen", listen, "err", err)
				}
			}()
		}

		seeds, err := crawl.LoadSeeds(cctx.String("start-users"))
		if err != nil {
			return err
		}
		if len(seeds) == 0 && cctx.String("curated-list") == "" {
			logger.Warn("no seed accounts and no curated list configured, nothing to crawl", "path", cctx.String("start-users"))
		}

		store, err := openStore(cctx, logger)
		if err != nil {
			return fmt.Errorf("opening set store: %w", err)
		}
		defer store.Close()

		net, err := connect(ctx, cctx, logger)
		if err != nil {
			return err
		}

		cfg := crawl.Config{
			Workers:     cctx.Int("workers"),
			CuratedList: cctx.String("curated-list"),
		}
		if hook := cctx.String("slack-webhook-url"); hook != "" {
			cfg.Notifier = notify.NewSlackNotifier(hook, logger)
		}
		crawler, err := buildCrawler(ctx, cctx, logger, net, store, cfg)
		if err != nil {
			return err
		}

		_, err = crawler.Run(ctx, seeds)
		if errors.Is(err, context.Canceled) {
			logger.Info("crawl interrupted; progress so far is saved")
			return nil
		}
		return err
	},
}

var scoreCmd = &cli.Command{
	Name:      "score",
	Usage:     "dry run: score one account and print the result, without touching any set",
	ArgsUsage: "<handle-or-did>",
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context
		logger := slog.Default()
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected exactly one account argument")
		}

		net, err := connect(ctx, cctx, logger)
		if err != nil {
			return err
		}
		crawler, err := buildCrawler(ctx, cctx, logger, net, nil, crawl.Config{})
		if err != nil {
			return err
		}

		ev, err := crawler.Evaluate(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		if ev.PostsErr != nil {
			logger.Warn("posts unavailable, scored on bio only", "err", ev.PostsErr)
		}

		out := map[string]any{
			"did":             ev.Account.DID,
			"handle":          ev.Account.Handle,
			"verdict":         ev.Verdict.String(),
			"score":           ev.Result.Score,
			"critical_hits":   ev.Result.CriticalHits,
			"contextual_hits": ev.Result.ContextualHits,
			"positive_hits":   ev.Result.PositiveHits,
			"posts_scored":    len(ev.Posts),
			"hits":            ev.Result.Ledger.Hits,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "    ")
		return enc.Encode(out)
	},
}

var checkKeywordsCmd = &cli.Command{
	Name:  "check-keywords",
	Usage: "load the keyword file and report table sizes and any dropped entries",
	Action: func(cctx *cli.Context) error {
		path := cctx.String("keywords")
		model, err := keyword.Load(path)
		critical, contextual, positive := model.Size()
		fmt.Printf("%s: critical=%d contextual=%d positive=%d\n", path, critical, contextual, positive)
		if err != nil {
			return fmt.Errorf("keyword file has problems: %w", err)
		}
		return nil
	},
}

var showSetsCmd = &cli.Command{
	Name:  "show-sets",
	Usage: "print set sizes and recent audit log entries",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "members",
			Usage: "also list every member of each set",
		},
		&cli.IntFlag{
			Name:  "audit",
			Usage: "number of most recent audit entries to print",
			Value: 10,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context
		store, err := openStore(cctx, slog.Default())
		if err != nil {
			return err
		}
		defer store.Close()

		for _, name := range setstore.AllSets {
			members, err := store.Members(ctx, name)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%d\n", name.Stem(), len(members))
			if cctx.Bool("members") {
				for _, m := range members {
					fmt.Printf("\t%s\n", m)
				}
			}
		}

		entries, err := store.AuditLog(ctx)
		if err != nil {
			return err
		}
		n := max(0, len(entries)-cctx.Int("audit"))
		for _, e := range entries[n:] {
			fmt.Printf("%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02T15:04:05Z07:00"), e.Action, e.User)
		}
		return nil
	},
}
