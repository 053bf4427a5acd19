// Package crawl drives analysis over the social graph: each seed account, the accounts each seed follows, and the
// accounts followed by members of a curated list. It never goes further than one hop.
package crawl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/magpie/gateway"
	"github.com/bluesky-social/magpie/ident"
	"github.com/bluesky-social/magpie/network"
	"github.com/bluesky-social/magpie/notify"
	"github.com/bluesky-social/magpie/scoring"
	"github.com/bluesky-social/magpie/setstore"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("magpie/crawl")

type Config struct {
	Store    setstore.SetStore
	Resolver *gateway.Resolver
	Profiles *gateway.ProfileGateway
	Content  *gateway.ContentGateway
	Graph    *gateway.GraphGateway
	Engine   *scoring.Engine
	Policy   scoring.Policy
	// optional
	Notifier notify.Notifier
	Logger   *slog.Logger
	// Number of follow edges analyzed concurrently. Values below 2 mean strictly sequential.
	Workers int
	// AT-URI or bsky.app URL of an externally curated list; empty to skip that phase
	CuratedList string
}

type Crawler struct {
	store       setstore.SetStore
	resolver    *gateway.Resolver
	profiles    *gateway.ProfileGateway
	content     *gateway.ContentGateway
	graph       *gateway.GraphGateway
	engine      *scoring.Engine
	policy      scoring.Policy
	notifier    notify.Notifier
	logger      *slog.Logger
	workers     int
	curatedList string

	// accounts currently being analyzed, so two workers never take the same one
	inflight *xsync.MapOf[ident.DID, struct{}]
	// identifiers (raw or DID) that failed earlier in this run
	failed *xsync.MapOf[string, failedVisit]
}

func NewCrawler(cfg Config) *Crawler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Crawler{
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		profiles:    cfg.Profiles,
		content:     cfg.Content,
		graph:       cfg.Graph,
		engine:      cfg.Engine,
		policy:      cfg.Policy,
		notifier:    cfg.Notifier,
		logger:      logger.With("component", "crawler"),
		workers:     workers,
		curatedList: cfg.CuratedList,
		inflight:    xsync.NewMapOf[ident.DID, struct{}](),
		failed:      xsync.NewMapOf[string, failedVisit](),
	}
}

// Run crawls from the given seeds, in order. Each seed is analyzed, then every account it follows; after all
// seeds, the follows of every curated-list member are analyzed. Per-account failures are logged and audited but
// never stop the crawl; only context cancellation does.
func (c *Crawler) Run(ctx context.Context, seeds []string) (*Summary, error) {
	sum := &Summary{}
	var lk sync.Mutex
	record := func(out Outcome) {
		lk.Lock()
		defer lk.Unlock()
		sum.add(out)
	}

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		out := c.AnalyzeAccount(ctx, seed)
		record(out)
		if out.Account.DID == "" {
			continue
		}
		// a seed's follows are visited even if the seed itself was skipped
		c.expand(ctx, out.Account, "seed", record)
	}

	if c.curatedList != "" {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		members, err := c.graph.CuratedList(ctx, c.curatedList)
		if err != nil {
			c.logger.Error("curated list unavailable", "list", c.curatedList, "err", err)
			c.audit(ctx, setstore.AuditEntry{
				Action:  "list_unavailable",
				User:    c.curatedList,
				Details: &setstore.Details{Identifier: c.curatedList, Error: err.Error()},
			})
		}
		for _, m := range members {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			c.expand(ctx, m, "list", record)
		}
	}

	c.logger.Info("crawl finished", "visited", sum.Visited, "already_analyzed", sum.AlreadyAnalyzed, "failed", sum.Failed,
		"moderation", sum.Verdicts[scoring.Moderation], "suspect", sum.Verdicts[scoring.Suspect],
		"whitelist", sum.Verdicts[scoring.Whitelist], "no_action", sum.Verdicts[scoring.NoAction])
	return sum, ctx.Err()
}

// expand analyzes every account that acct follows.
func (c *Crawler) expand(ctx context.Context, acct network.Account, origin string, record func(Outcome)) {
	logger := c.logger.With("origin", origin, "did", acct.DID)
	follows, err := c.graph.Follows(ctx, acct.DID)
	if err != nil {
		logger.Warn("follows unavailable", "err", err)
		c.audit(ctx, setstore.AuditEntry{
			Action:  "follows_unavailable",
			User:    acct.DID.String(),
			Handle:  acct.Handle.String(),
			Details: &setstore.Details{Reason: origin, Error: err.Error()},
		})
		return
	}
	logger.Info("analyzing follows", "count", len(follows))

	if c.workers < 2 {
		for _, f := range follows {
			if ctx.Err() != nil {
				return
			}
			record(c.AnalyzeAccount(ctx, f.DID.String()))
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(c.workers)
	for _, f := range follows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record(c.AnalyzeAccount(ctx, f.DID.String()))
			return nil
		})
	}
	_ = g.Wait()
}

// AnalyzeAccount takes one account from identifier to recorded verdict. It does not return an error: every way
// analysis can end is reported in the outcome, and every decision is written to the audit log.
func (c *Crawler) AnalyzeAccount(ctx context.Context, raw string) (out Outcome) {
	ctx, span := tracer.Start(ctx, "AnalyzeAccount")
	defer span.End()
	start := time.Now()
	defer func() {
		accountsProcessed.WithLabelValues(out.State.String()).Inc()
		analysisDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("state", out.State.String()))
		if out.Err != nil {
			span.SetStatus(codes.Error, out.Err.Error())
		}
	}()

	out = Outcome{Identifier: raw, State: Unseen}
	logger := c.logger.With("identifier", raw)

	id, perr := ident.ParseIdentifier(raw)
	key := strings.TrimSpace(raw)
	if perr == nil {
		key = id.String()
	}
	if prev, ok := c.failed.Load(key); ok {
		return c.repeatFailure(logger, out, prev)
	}

	// the inflight claim is released only after the account is marked analyzed or remembered as failed
	var claimed ident.DID
	defer func() {
		if claimed != "" {
			c.inflight.Delete(claimed)
		}
	}()

	// follow edges arrive as DIDs, which can be checked against the sets without touching the network
	if perr == nil && id.IsDID() {
		out.Account = network.Account{DID: id.DID}
		if st, skip := c.skipKnown(ctx, logger, out.Account, raw); skip {
			out.State = st
			return out
		}
		if _, busy := c.inflight.LoadOrStore(id.DID, struct{}{}); busy {
			logger.Debug("account being analyzed by another worker, skipping")
			out.State = AlreadyAnalyzed
			return out
		}
		claimed = id.DID
		// another worker may have failed it between the check above and the claim
		if prev, ok := c.failed.Load(key); ok {
			return c.repeatFailure(logger, out, prev)
		}
	}

	out.State = Resolving
	acct, err := c.resolver.Resolve(ctx, raw)
	if err != nil {
		action, st := "resolve_failed", ResolveFailed
		if errors.Is(err, gateway.ErrProfileUnavailable) {
			// a DID is confirmed by fetching its profile
			action, st = "profile_unavailable", ProfileMissing
		}
		logger.Warn("could not resolve account, skipping", "action", action, "err", err)
		c.audit(ctx, setstore.AuditEntry{
			Action:  action,
			User:    key,
			Details: &setstore.Details{Identifier: raw, Error: err.Error()},
		})
		out.State = st
		out.Err = err
		c.failed.Store(key, failedVisit{state: st, err: err})
		return out
	}
	out.Account = acct
	logger = logger.With("did", acct.DID, "handle", acct.Handle)
	span.SetAttributes(attribute.String("did", acct.DID.String()))
	did := acct.DID.String()

	if claimed != acct.DID {
		if prev, ok := c.failed.Load(did); ok {
			return c.repeatFailure(logger, out, prev)
		}
		if _, busy := c.inflight.LoadOrStore(acct.DID, struct{}{}); busy {
			logger.Debug("account being analyzed by another worker, skipping")
			out.State = AlreadyAnalyzed
			return out
		}
		claimed = acct.DID
	}

	if st, skip := c.skipKnown(ctx, logger, acct, raw); skip {
		out.State = st
		return out
	}

	profile, err := c.profiles.Fetch(ctx, acct.DID)
	if err != nil {
		// not marked analyzed, so a later run tries again; within this run it is not retried
		logger.Warn("profile unavailable, skipping", "err", err)
		c.audit(ctx, setstore.AuditEntry{
			Action:  "profile_unavailable",
			User:    did,
			Handle:  acct.Handle.String(),
			Details: &setstore.Details{Identifier: raw, Error: err.Error()},
		})
		out.State = ProfileMissing
		out.Err = err
		fv := failedVisit{state: ProfileMissing, err: err}
		c.failed.Store(did, fv)
		c.failed.Store(key, fv)
		return out
	}

	posts, err := c.content.RecentPosts(ctx, acct.DID)
	if err != nil {
		logger.Warn("recent posts unavailable, scoring bio only", "err", err)
		c.audit(ctx, setstore.AuditEntry{
			Action:  "posts_unavailable",
			User:    did,
			Handle:  acct.Handle.String(),
			Details: &setstore.Details{Identifier: raw, Error: err.Error()},
		})
		posts = nil
	}

	res := c.engine.Score(profile, posts)
	out.Result = &res
	out.State = Scored
	accountScores.Observe(float64(res.Score))

	out.Verdict = c.policy.Classify(res)
	out.State = Classified
	accountVerdicts.WithLabelValues(out.Verdict.String()).Inc()
	logger.Info("account classified", "verdict", out.Verdict, "score", res.Score,
		"critical_hits", res.CriticalHits, "contextual_hits", res.ContextualHits, "positive_hits", res.PositiveHits)

	c.record(ctx, logger, acct, raw, out.Verdict, res)
	c.markAnalyzed(ctx, logger, acct)
	out.State = Recorded
	return out
}

// An account whose resolution or profile fetch failed earlier in this run. Later visits end the same way without
// touching the network or writing another audit record.
type failedVisit struct {
	state State
	err   error
}

func (c *Crawler) repeatFailure(logger *slog.Logger, out Outcome, prev failedVisit) Outcome {
	logger.Debug("account already failed in this run, skipping", "state", prev.state)
	out.State = prev.state
	out.Err = prev.err
	return out
}

// skipKnown reports whether analysis can stop before fetching anything: the account was analyzed before, or is
// whitelisted (in which case it is now marked analyzed).
func (c *Crawler) skipKnown(ctx context.Context, logger *slog.Logger, acct network.Account, raw string) (State, bool) {
	did := acct.DID.String()
	done, err := c.store.Contains(ctx, setstore.Analyzed, did)
	if err != nil {
		logger.Error("checking analyzed set", "err", err)
	} else if done {
		logger.Debug("already analyzed, skipping")
		return AlreadyAnalyzed, true
	}

	wl, err := c.store.Contains(ctx, setstore.Whitelist, did)
	if err != nil {
		logger.Error("checking whitelist", "err", err)
		return Unseen, false
	}
	if !wl {
		return Unseen, false
	}
	logger.Info("account is whitelisted, skipping")
	c.audit(ctx, setstore.AuditEntry{
		Action:  "skip_whitelisted",
		User:    did,
		Handle:  acct.Handle.String(),
		Details: &setstore.Details{Identifier: raw},
	})
	c.markAnalyzed(ctx, logger, acct)
	return Whitelisted, true
}

func verdictSet(v scoring.Verdict) (setstore.SetName, bool) {
	switch v {
	case scoring.Moderation:
		return setstore.Moderation, true
	case scoring.Suspect:
		return setstore.Suspect, true
	case scoring.Whitelist:
		return setstore.Whitelist, true
	}
	return "", false
}

func resultDetails(raw string, v scoring.Verdict, res scoring.Result) *setstore.Details {
	score := res.Score
	d := &setstore.Details{
		Identifier:     raw,
		Score:          &score,
		CriticalHits:   res.CriticalHits,
		ContextualHits: res.ContextualHits,
		PositiveHits:   res.PositiveHits,
		Reason:         v.String(),
	}
	if res.Ledger != nil {
		for _, h := range res.Ledger.Hits {
			d.Hits = append(d.Hits, setstore.HitDetail{
				Term:     h.Term,
				Weight:   h.Weight,
				Category: string(h.Category),
				Source:   string(h.Source),
			})
		}
	}
	return d
}

// record writes the verdict: a classification set entry (which audits itself), or a no_action audit record.
func (c *Crawler) record(ctx context.Context, logger *slog.Logger, acct network.Account, raw string, v scoring.Verdict, res scoring.Result) {
	did := acct.DID.String()
	details := resultDetails(raw, v, res)

	set, ok := verdictSet(v)
	if !ok {
		c.audit(ctx, setstore.AuditEntry{Action: "no_action", User: did, Handle: acct.Handle.String(), Details: details})
		return
	}

	// at most one classification set per account
	for _, other := range []setstore.SetName{setstore.Whitelist, setstore.Moderation, setstore.Suspect} {
		if other == set {
			continue
		}
		in, err := c.store.Contains(ctx, other, did)
		if err != nil {
			logger.Error("checking classification set", "set", other, "err", err)
			continue
		}
		if in {
			logger.Info("account already in another classification set", "set", other, "verdict", v)
			details.Note = "already in " + other.Stem()
			c.audit(ctx, setstore.AuditEntry{Action: "already_classified", User: did, Handle: acct.Handle.String(), Details: details})
			return
		}
	}

	outcome, err := c.store.AddIfAbsent(ctx, set, setstore.Entry{ID: did, Handle: acct.Handle.String(), Details: details})
	if err != nil {
		auditFailures.Inc()
		logger.Error("failed to persist classification", "set", set, "err", err)
	}
	switch outcome {
	case setstore.AlreadyPresent:
		logger.Debug("account already in set", "set", set)
		c.audit(ctx, setstore.AuditEntry{Action: "already_classified", User: did, Handle: acct.Handle.String(), Details: details})
	case setstore.Added:
		if c.notifier != nil && v != scoring.Whitelist {
			if err := c.notifier.Classified(ctx, acct, v, res); err != nil {
				logger.Warn("notification failed", "err", err)
			}
		}
	}
}

func (c *Crawler) markAnalyzed(ctx context.Context, logger *slog.Logger, acct network.Account) {
	_, err := c.store.AddIfAbsent(ctx, setstore.Analyzed, setstore.Entry{ID: acct.DID.String(), Handle: acct.Handle.String()})
	if err != nil {
		// the account may be visited again after a restart
		auditFailures.Inc()
		logger.Error("failed to mark account analyzed", "err", err)
	}
}

func (c *Crawler) audit(ctx context.Context, entry setstore.AuditEntry) {
	if err := c.store.Log(ctx, entry); err != nil {
		auditFailures.Inc()
		c.logger.Error("failed to write audit log", "action", entry.Action, "user", entry.User, "err", err)
	}
}

// Evaluation is the result of a dry run: everything analysis would compute, nothing persisted.
type Evaluation struct {
	Account network.Account
	Profile *network.Profile
	Posts   []network.Post
	// set when posts could not be fetched; the account was scored on its bio alone
	PostsErr error
	Result   scoring.Result
	Verdict  scoring.Verdict
}

// Evaluate resolves, fetches and scores one account without consulting or changing any set.
func (c *Crawler) Evaluate(ctx context.Context, raw string) (*Evaluation, error) {
	acct, err := c.resolver.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	profile, err := c.profiles.Fetch(ctx, acct.DID)
	if err != nil {
		return nil, err
	}
	ev := &Evaluation{Account: acct, Profile: profile}
	ev.Posts, ev.PostsErr = c.content.RecentPosts(ctx, acct.DID)
	ev.Result = c.engine.Score(profile, ev.Posts)
	ev.Verdict = c.policy.Classify(ev.Result)
	return ev, nil
}
