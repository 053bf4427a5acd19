package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/bluesky-social/magpie/network"
	"github.com/bluesky-social/magpie/retry"
	"github.com/bluesky-social/magpie/scoring"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "magpie",
		Usage:   "crawls follow graphs and sorts accounts into moderation, suspect and whitelist sets",
		Version: versioninfo.Short(),
	}

	defaultPolicy := scoring.DefaultPolicy()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"MAGPIE_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			Value:   "text",
			EnvVars: []string{"MAGPIE_LOG_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "write logs to this file instead of stdout",
			EnvVars: []string{"MAGPIE_LOG_FILE"},
		},
		&cli.StringFlag{
			Name:    "debug-mode",
			Usage:   "force debug logging (true, 1 or yes)",
			EnvVars: []string{"DEBUG_MODE"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "directory holding the JSON set files and log.json",
			Value:   ".",
			EnvVars: []string{"MAGPIE_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "store sets and audit log in this database (sqlite or postgres) instead of JSON files",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   10,
			EnvVars: []string{"MAGPIE_MAX_DB_CONNECTIONS"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "trace database queries with OTEL",
			EnvVars: []string{"MAGPIE_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "keywords",
			Usage:   "keyword file (JSON or YAML)",
			Value:   "keywords.json",
			EnvVars: []string{"MAGPIE_KEYWORDS"},
		},
		&cli.StringFlag{
			Name:    "pds-host",
			Usage:   "method, hostname, and port of PDS instance to authenticate against",
			Value:   "https://bsky.social",
			EnvVars: []string{"ATP_PDS_HOST"},
		},
		&cli.StringFlag{
			Name:    "username",
			Usage:   "account handle or email for the crawler's session",
			EnvVars: []string{"BLUESKY_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "account (app) password for the crawler's session",
			EnvVars: []string{"BLUESKY_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "cache identity resolutions in redis (eg, 'redis://localhost:6379/0') instead of in-process",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "ident-cache-ttl",
			Value:   24 * time.Hour,
			EnvVars: []string{"MAGPIE_IDENT_CACHE_TTL"},
		},
		&cli.Float64Flag{
			Name:    "request-rate-limit",
			Usage:   "max requests per second to the network, across all workers",
			Value:   5,
			EnvVars: []string{"MAGPIE_REQUEST_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "retry-attempts",
			Usage:   "attempts per remote call, including the first",
			Value:   retry.DefaultMaxAttempts,
			EnvVars: []string{"MAGPIE_RETRY_ATTEMPTS"},
		},
		&cli.DurationFlag{
			Name:    "retry-delay",
			Usage:   "fixed delay between attempts of a remote call",
			Value:   retry.DefaultDelay,
			EnvVars: []string{"MAGPIE_RETRY_DELAY"},
		},
		&cli.IntFlag{
			Name:    "feed-limit",
			Usage:   "number of recent posts and replies scored per account",
			Value:   network.DefaultFeedLimit,
			EnvVars: []string{"MAGPIE_FEED_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "follows-limit",
			Usage:   "number of follows read per account (single page)",
			Value:   network.DefaultFollowsLimit,
			EnvVars: []string{"MAGPIE_FOLLOWS_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "whitelist-max",
			Usage:   "scores at or below this are whitelisted",
			Value:   defaultPolicy.WhitelistMax,
			EnvVars: []string{"MAGPIE_WHITELIST_MAX"},
		},
		&cli.IntFlag{
			Name:    "moderation-min",
			Usage:   "scores at or above this go to the moderation list",
			Value:   defaultPolicy.ModerationMin,
			EnvVars: []string{"MAGPIE_MODERATION_MIN"},
		},
		&cli.IntFlag{
			Name:    "suspect-min",
			Usage:   "scores at or above this go to the suspect list",
			Value:   defaultPolicy.SuspectMin,
			EnvVars: []string{"MAGPIE_SUSPECT_MIN"},
		},
		&cli.IntFlag{
			Name:    "moderation-min-critical-hits",
			Usage:   "if positive, moderation also requires this many critical keyword hits",
			Value:   defaultPolicy.ModerationMinCriticalHits,
			EnvVars: []string{"MAGPIE_MODERATION_MIN_CRITICAL_HITS"},
		},
	}

	app.Before = func(cctx *cli.Context) error {
		if _, err := configLogging(cctx); err != nil {
			return err
		}
		_, err := policyFromFlags(cctx)
		return err
	}

	app.Commands = []*cli.Command{
		crawlCmd,
		scoreCmd,
		checkKeywordsCmd,
		showSetsCmd,
	}

	return app.Run(args)
}
