package main

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streeteats/internal/config"
	httptransport "streeteats/internal/http"
	"streeteats/internal/infra"
	"streeteats/internal/maps"
	"streeteats/internal/modules/dashboard"
	"streeteats/internal/modules/dispatch"
	"streeteats/internal/modules/mailer"
	"streeteats/internal/modules/notify"
	"streeteats/internal/modules/order"
	"streeteats/internal/modules/payment"
	"streeteats/internal/modules/pricing"
	"streeteats/internal/modules/stats"
	"streeteats/internal/types"
)

// application is the wired process: the router plus the loops serve runs.
type application struct {
	router   *gin.Engine
	orders   *order.Service
	sweeper  *dispatch.Sweeper
	notifier *notify.Notifier
	// mailer is nil when SMTP is not configured.
	mailer  *mailer.Mailer
	closers []func() error
	log     zerolog.Logger
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("shutdown")
		}
	}
}

type stores struct {
	orders  order.Store
	catalog order.Catalog
	stats   stats.Store
	dir     dispatch.Directory
}

func build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (_ *application, err error) {
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	a := &application{log: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	checks := map[string]httptransport.HealthCheck{}

	// storage
	var st stores
	switch cfg.Store.Mode {
	case config.StorePostgres:
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		checks["postgres"] = db.Ping
		st = postgresStores(db)
	default:
		logger.Warn().Msg("in-memory store: data is lost on restart")
		st = memoryStores()
	}

	// redis is shared by the GEO index and the redis event transport
	var rc *redis.Client
	if cfg.Dispatch.Policy == config.PolicyNearest || slices.Contains(cfg.Events.Transports, config.TransportRedis) {
		rc, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	if cfg.Firebase.ProjectID == "" {
		return nil, errors.New("STREETEATS_FIREBASE_PROJECT_ID is required")
	}
	fb, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return nil, err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, fb)
	if err != nil {
		return nil, err
	}

	// events
	broker := notify.NewBroker()
	var subscriber notify.Subscriber = broker
	transports := notify.Multi{broker}
	for _, name := range cfg.Events.Transports {
		switch name {
		case config.TransportRedis:
			t := notify.NewRedisTransport(rc)
			transports = append(transports, t)
			// rooms may be joined on any node
			subscriber = t
		case config.TransportKafka:
			transports = append(transports, notify.NewKafkaTransport(notify.NewKafkaWriter(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)))
		case config.TransportAMQP:
			conn, err := infra.DialAMQP(cfg.Events.AMQP.URL)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, conn.Close)
			t, err := notify.NewAMQPTransport(conn, cfg.Events.AMQP.Exchange)
			if err != nil {
				return nil, err
			}
			transports = append(transports, t)
		case config.TransportFCM:
			client, err := infra.NewMessagingClient(ctx, fb)
			if err != nil {
				return nil, err
			}
			transports = append(transports, notify.NewFCMTransport(client))
		}
	}
	a.closers = append(a.closers, transports.Close)
	a.notifier = notify.NewNotifier(transports, cfg.Events.QueueSize, logger)

	var mail order.Messenger
	if cfg.MailEnabled() {
		sender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return nil, err
		}
		users, err := infra.NewFirebaseUsers(ctx, fb)
		if err != nil {
			return nil, err
		}
		a.mailer = mailer.New(sender, users, cfg.Mail.QueueSize, logger)
		mail = a.mailer
	} else {
		logger.Warn().Msg("smtp credentials missing; order mail disabled")
	}

	// dispatch
	var locator dispatch.Locator
	var policy order.PartnerFinder
	switch cfg.Dispatch.Policy {
	case config.PolicyNearest:
		locator = dispatch.NewGeoIndex(rc)
		policy = dispatch.NewNearest(st.dir, locator, cfg.Dispatch.RadiusKm, cfg.Dispatch.PoolSize)
	default:
		policy = dispatch.NewFirstAvailable(st.dir)
	}

	var eta order.ETAEstimator
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			return nil, err
		}
		eta = routes
	}

	aggregator := stats.NewAggregator(st.stats, cfg.Stats.EarningPerDelivery, logger)
	a.orders = order.NewService(order.Deps{
		Store:   st.orders,
		Catalog: st.catalog,
		Pricing: pricing.NewService(pricing.Config{
			TaxRate:     cfg.Pricing.TaxRate,
			DeliveryFee: cfg.Pricing.DeliveryFee,
		}),
		Partners: policy,
		Couriers: dispatch.NewRoster(st.dir),
		Notifier: a.notifier,
		Mail:     mail,
		Stats:    aggregator,
		ETA:      eta,
		Logger:   logger,
	}, order.Config{
		DefaultETA:     cfg.Order.DefaultETA,
		ReaperInterval: cfg.Order.ReaperInterval,
		ReaperDeadline: cfg.Order.ReaperDeadline,
		ReaperBatch:    cfg.Order.ReaperBatch,
	})
	a.sweeper = dispatch.NewSweeper(a.orders, policy, cfg.Dispatch.SweepInterval, cfg.Dispatch.SweepBatch, logger)

	var gateway payment.Gateway
	if cfg.Payment.KeyID != "" && cfg.Payment.KeySecret != "" {
		gateway = payment.NewRazorpayGateway(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret)
	} else {
		logger.Warn().Msg("payment gateway keys missing; online payments disabled")
	}
	payments := payment.NewService(a.orders, gateway, a.notifier, payment.Config{
		KeyID:         cfg.Payment.KeyID,
		KeySecret:     cfg.Payment.KeySecret,
		WebhookSecret: cfg.Payment.WebhookSecret,
	}, logger)

	a.router = httptransport.NewRouter(httptransport.RouterDeps{
		Orders:    a.orders,
		Payments:  payments,
		Dispatch:  dispatch.NewService(st.dir, locator, a.orders, a.notifier, logger),
		Dashboard: dashboard.NewService(st.orders, aggregator, st.dir, cfg.Stats.EarningPerDelivery, logger),
		Events:    subscriber,
		Verifier:  verifier,
		Logger:    logger,
		Checks:    checks,
		RateLimit: cfg.HTTP.RateLimit,
		RateBurst: cfg.HTTP.RateBurst,
		Verbose:   cfg.Development(),
	})
	return a, nil
}

func postgresStores(db *pgxpool.Pool) stores {
	return stores{
		orders:  order.NewPgStore(db),
		catalog: order.NewPgCatalog(db),
		stats:   stats.NewPgStore(db),
		dir:     dispatch.NewPgDirectory(db),
	}
}

// memoryStores seeds one vendor and one partner so a local run can take an order end to end.
func memoryStores() stores {
	catalog := order.NewMemoryCatalog()
	catalog.Put(order.Vendor{
		ID:       "demo-vendor",
		Active:   true,
		Location: types.Point{Lat: 12.9716, Lng: 77.5946},
		PrepTime: 15 * time.Minute,
		Menu: map[types.ID]order.MenuItem{
			"vada-pav":  {ID: "vada-pav", Name: "Vada Pav", Price: decimal.NewFromInt(30), Available: true},
			"pani-puri": {ID: "pani-puri", Name: "Pani Puri", Price: decimal.NewFromInt(50), Available: true},
		},
	})
	dir := dispatch.NewMemoryDirectory()
	dir.Put(dispatch.Partner{
		ID:        "demo-partner",
		Name:      "Demo Partner",
		Status:    dispatch.PartnerApproved,
		IsActive:  true,
		IsOnline:  true,
		UpdatedAt: time.Now(),
	})
	return stores{
		orders:  order.NewMemoryStore(),
		catalog: catalog,
		stats:   stats.NewMemoryStore(),
		dir:     dir,
	}
}
