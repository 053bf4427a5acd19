package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/magpie/cachestore"
	"github.com/bluesky-social/magpie/crawl"
	"github.com/bluesky-social/magpie/gateway"
	"github.com/bluesky-social/magpie/keyword"
	"github.com/bluesky-social/magpie/network"
	"github.com/bluesky-social/magpie/retry"
	"github.com/bluesky-social/magpie/scoring"
	"github.com/bluesky-social/magpie/setstore"
	"github.com/bluesky-social/magpie/util/cliutil"
	"github.com/bluesky-social/magpie/xrpc"

	"github.com/carlmjohnson/versioninfo"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
	"gorm.io/plugin/opentelemetry/tracing"
)

func configLogging(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
		LogPath:   cctx.String("log-file"),
		Debug:     cliutil.EnvBool(cctx.String("debug-mode")),
	})
}

func openStore(cctx *cli.Context, logger *slog.Logger) (setstore.SetStore, error) {
	if dburl := cctx.String("database-url"); dburl != "" {
		db, err := cliutil.SetupDatabase(dburl, cctx.Int("max-db-connections"), logger)
		if err != nil {
			return nil, err
		}
		if cctx.Bool("db-tracing") {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		return setstore.NewSQLStore(db, logger)
	}
	return setstore.OpenFileStore(cctx.String("data-dir"), logger)
}

// Missing or broken keyword files are not fatal: every account scores zero.
func loadModel(cctx *cli.Context, logger *slog.Logger) *keyword.Model {
	path := cctx.String("keywords")
	model, err := keyword.Load(path)
	if err != nil {
		logger.Warn("keyword tables degraded", "path", path, "err", err)
	}
	critical, contextual, positive := model.Size()
	logger.Info("loaded keyword tables", "path", path, "critical", critical, "contextual", contextual, "positive", positive)
	return model
}

func policyFromFlags(cctx *cli.Context) (scoring.Policy, error) {
	p := scoring.Policy{
		WhitelistMax:              cctx.Int("whitelist-max"),
		ModerationMin:             cctx.Int("moderation-min"),
		SuspectMin:                cctx.Int("suspect-min"),
		ModerationMinCriticalHits: cctx.Int("moderation-min-critical-hits"),
	}
	return p, p.Validate()
}

func identCache(ctx context.Context, cctx *cli.Context) (cachestore.CacheStore, error) {
	ttl := cctx.Duration("ident-cache-ttl")
	if redisURL := cctx.String("redis-url"); redisURL != "" {
		return cachestore.NewRedisCacheStore(ctx, redisURL, ttl)
	}
	return cachestore.NewMemCacheStore(100_000, ttl), nil
}

// Creates an authenticated network client. Authentication failure is fatal.
func connect(ctx context.Context, cctx *cli.Context, logger *slog.Logger) (*network.XRPCNetwork, error) {
	client := xrpc.NewClient(cctx.String("pds-host"))
	client.UserAgent = "magpie/" + versioninfo.Short()
	if rps := cctx.Float64("request-rate-limit"); rps > 0 {
		client.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if err := network.Login(ctx, client, cctx.String("username"), cctx.String("password")); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	auth := client.Auth()
	logger.Info("authenticated", "did", auth.Did, "handle", auth.Handle, "host", client.Host)

	net := network.NewXRPCNetwork(client, logger)
	net.FeedLimit = int64(cctx.Int("feed-limit"))
	net.FollowsLimit = int64(cctx.Int("follows-limit"))
	return net, nil
}

// Wires the gateways, scoring and store into a crawler. store may be nil for dry runs.
func buildCrawler(ctx context.Context, cctx *cli.Context, logger *slog.Logger, net network.Network, store setstore.SetStore, cfg crawl.Config) (*crawl.Crawler, error) {
	policy, err := policyFromFlags(cctx)
	if err != nil {
		return nil, err
	}
	cache, err := identCache(ctx, cctx)
	if err != nil {
		return nil, err
	}

	ex := retry.NewExecutor(cctx.Int("retry-attempts"), cctx.Duration("retry-delay"), logger)
	profiles := gateway.NewProfileGateway(net, ex, logger)
	resolver := gateway.NewResolver(net, ex, profiles, cache, logger)

	cfg.Store = store
	cfg.Resolver = resolver
	cfg.Profiles = profiles
	cfg.Content = gateway.NewContentGateway(net, ex, logger)
	cfg.Graph = gateway.NewGraphGateway(net, ex, resolver, logger)
	cfg.Engine = scoring.NewEngine(loadModel(cctx, logger))
	cfg.Policy = policy
	cfg.Logger = logger
	return crawl.NewCrawler(cfg), nil
}
