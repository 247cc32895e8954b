package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/auth/oauthsession"
	"github.com/BearBump/ReturnBox/internal/broker/kafka"
	"github.com/BearBump/ReturnBox/internal/cache"
	"github.com/BearBump/ReturnBox/internal/cache/memcache"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/integrations/carrier"
	"github.com/BearBump/ReturnBox/internal/integrations/carrier/fake"
	"github.com/BearBump/ReturnBox/internal/integrations/carrier/trackhttp"
	"github.com/BearBump/ReturnBox/internal/integrations/inbox"
	"github.com/BearBump/ReturnBox/internal/metrics"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/scheduler"
	"github.com/BearBump/ReturnBox/internal/services/items"
	"github.com/BearBump/ReturnBox/internal/services/notify"
	"github.com/BearBump/ReturnBox/internal/services/scanner"
	"github.com/BearBump/ReturnBox/internal/services/supervisor"
	"github.com/BearBump/ReturnBox/internal/services/syncer"
	"github.com/BearBump/ReturnBox/internal/services/tracking"
	"github.com/BearBump/ReturnBox/internal/storage/filestore"
	"github.com/BearBump/ReturnBox/internal/storage/pgitems"
	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type itemStore interface {
	items.Store
	syncer.CandidateSink
	ListCandidates(ctx context.Context) ([]models.CandidateReturn, error)
	DismissCandidate(ctx context.Context, messageID string) error
}

type seenStore interface {
	syncer.SeenSet
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

type workerFactories struct {
	newStorage       func(cfg *config.Config) (st itemStore, seen seenStore, closeFn func(), err error)
	newCache         func(cfg *config.Config) (c cache.BytesCache, rl tracking.RateLimiter, closeFn func())
	newDeliverer     func(cfg *config.Config) (d notify.Deliverer, closeFn func())
	newCarrierClient func(cfg *config.Config) carrier.Client
	newSessionStore  func(cfg *config.Config) oauthsession.Store
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (itemStore, seenStore, func(), error) {
			var (
				st      itemStore
				seen    seenStore
				closeFn func()
			)
			switch cfg.Storage.Driver {
			case "postgres":
				pg, err := openPostgresWithRetry(cfg.Database.ConnString(), 30*time.Second)
				if err != nil {
					return nil, nil, nil, err
				}
				st, seen, closeFn = pg, pg.SeenSet(), pg.Close
			default:
				dir := cfg.Storage.Dir
				if dir == "" {
					dir = "./data"
				}
				fs, err := filestore.New(dir)
				if err != nil {
					return nil, nil, nil, err
				}
				st, seen, closeFn = fs, fs.SeenSet(), fs.Close
			}

			// seen-set можно вынести в Redis, чтобы его делили несколько воркеров
			if addr := cfg.Redis.Addr(); addr != "" && cfg.Redis.UseForSeen {
				rs := rediscache.NewSeenSet(addr, cfg.Redis.SeenSetKey)
				storeClose := closeFn
				seen = rs
				closeFn = func() {
					_ = rs.Close()
					storeClose()
				}
			}
			return st, seen, closeFn, nil
		},
		newCache: func(cfg *config.Config) (cache.BytesCache, tracking.RateLimiter, func()) {
			addr := cfg.Redis.Addr()
			if addr == "" {
				return memcache.New(), nil, func() {}
			}
			rc := rediscache.New(addr)
			rl := rediscache.NewRateLimiter(addr)
			return rc, rl, func() {
				_ = rc.Close()
				_ = rl.Close()
			}
		},
		newDeliverer: func(cfg *config.Config) (notify.Deliverer, func()) {
			brokers := cfg.Kafka.Brokers()
			if len(brokers) == 0 {
				return notify.LogDeliverer{}, func() {}
			}
			p := kafka.NewProducer(brokers)
			return notify.NewBrokerDeliverer(p, cfg.Kafka.AlertsTopicName), func() { _ = p.Close() }
		},
		newCarrierClient: func(cfg *config.Config) carrier.Client {
			// Без ключа провайдера работаем на локальном fake.
			if cfg.Tracking.Mode == "http" && cfg.Tracking.APIKey != "" {
				return trackhttp.New(
					cfg.Tracking.BaseURL,
					cfg.Tracking.APIKey,
					cfg.Tracking.AuthScheme,
					time.Duration(cfg.Tracking.TimeoutSeconds)*time.Second,
				)
			}
			return fake.New()
		},
		newSessionStore: func(cfg *config.Config) oauthsession.Store {
			return oauthsession.NewKeyringStore(cfg.Inbox.KeyringService)
		},
	}
}

// Postgres может подниматься дольше воркера, поэтому ждём его до wait.
func openPostgresWithRetry(connString string, wait time.Duration) (*pgitems.Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	st, err := backoff.Retry(ctx, func() (*pgitems.Storage, error) {
		return pgitems.New(connString)
	}, backoff.WithBackOff(backoff.NewConstantBackOff(time.Second)), backoff.WithMaxElapsedTime(wait))
	if err != nil {
		return nil, errors.Wrapf(err, "postgres is not ready after %s", wait)
	}
	return st, nil
}

type worker struct {
	cfg         *config.Config
	list        *items.List
	store       itemStore
	seen        seenStore
	coordinator *syncer.Coordinator
	supervisor  *supervisor.Supervisor
	host        *scheduler.Host
	session     *oauthsession.Manager
	metrics     *metrics.Metrics
	trigger     *notify.Trigger
}

func buildWorker(ctx context.Context, cfg *config.Config, f workerFactories) (*worker, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	st, seen, closeStore, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open storage")
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	list := items.New(st)
	if err := list.Load(ctx); err != nil {
		closeAll()
		return nil, nil, errors.Wrap(err, "load items")
	}

	c, rl, closeCache := f.newCache(cfg)
	closers = append(closers, closeCache)

	deliverer, closeDeliverer := f.newDeliverer(cfg)
	closers = append(closers, closeDeliverer)

	m := metrics.New()

	tracker := tracking.New(f.newCarrierClient(cfg), c, time.Duration(cfg.Tracking.CacheTTLSeconds)*time.Second)
	if rl != nil {
		tracker = tracker.WithRateLimit(rl, int64(cfg.Tracking.RateLimitPerMinute))
	}

	session := oauthsession.NewManager(oauthsession.Config{
		ClientID:    cfg.Inbox.ClientID,
		RedirectURL: cfg.Inbox.RedirectURI,
		AuthURL:     cfg.Inbox.AuthURL,
		TokenURL:    cfg.Inbox.TokenURL,
		Scopes:      cfg.Inbox.Scopes,
	}, f.newSessionStore(cfg))
	if err := session.Load(); err != nil {
		// без сессии просто пропускаем скан почты
		slog.Warn("load inbox session", "error", err.Error())
	}

	mail := inbox.New(cfg.Inbox.APIBaseURL, time.Duration(cfg.Inbox.TimeoutSeconds)*time.Second)
	sc := scanner.New(session, mail).
		WithSettings(cfg.Inbox.Query, cfg.Inbox.MaxPages, cfg.Inbox.FetchConcurrency)

	trigger := notify.New(deliverer).WithSentHook(m.AlertSent)
	closers = append(closers, trigger.Wait)

	coord := syncer.New(list, tracker, sc, seen, st, trigger,
		syncer.WithMetrics(m),
		syncer.WithStaleAfter(time.Duration(cfg.Tracking.StaleAfterMinutes)*time.Minute),
		syncer.WithConcurrency(cfg.Tracking.Concurrency),
		syncer.WithAlertLedger(syncer.NewCacheLedger(c, syncer.ReturnWindow)),
	)

	host := scheduler.New().WithSettings(
		time.Duration(cfg.ReturnBox.GrantWindowSeconds)*time.Second,
		time.Duration(cfg.ReturnBox.HorizonHours)*time.Hour,
	)

	sup := supervisor.New(host, coord, cfg.ReturnBox.JobID).
		WithSettings(time.Duration(cfg.ReturnBox.SafetyMarginSeconds) * time.Second).
		WithMetrics(m).
		WithPlanner(supervisor.PlannerConfig{
			IntervalMin: time.Duration(cfg.ReturnBox.IntervalMinSeconds) * time.Second,
			IntervalMax: time.Duration(cfg.ReturnBox.IntervalMaxSeconds) * time.Second,
			Backoff1:    time.Duration(cfg.ReturnBox.Backoff1Seconds) * time.Second,
			Backoff2:    time.Duration(cfg.ReturnBox.Backoff2Seconds) * time.Second,
			Backoff3:    time.Duration(cfg.ReturnBox.Backoff3Seconds) * time.Second,
			Backoff4:    time.Duration(cfg.ReturnBox.Backoff4Seconds) * time.Second,
		})

	return &worker{
		cfg:         cfg,
		list:        list,
		store:       st,
		seen:        seen,
		coordinator: coord,
		supervisor:  sup,
		host:        host,
		session:     session,
		metrics:     m,
		trigger:     trigger,
	}, closeAll, nil
}

func RunReturnWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	w, closeFn, err := buildWorker(ctx, cfg, f)
	if err != nil {
		return err
	}
	defer closeFn()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.host.Run(gctx)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:    cfg.ReturnBox.HTTPAddr,
			swaggerPath: cfg.ReturnBox.SwaggerPath,
			w:           w,
		})
	})

	if err := w.supervisor.Start(gctx, time.Now().UTC()); err != nil {
		slog.Error("start supervisor", "error", err.Error())
	}
	slog.Info("return-worker started", "job_id", w.supervisor.JobID(), "items", w.list.Len(), "inbox_session", w.session.HasSession())

	err = g.Wait()
	if flushErr := w.list.Flush(context.WithoutCancel(ctx)); flushErr != nil {
		slog.Error("final flush", "error", flushErr.Error())
	}
	return err
}
