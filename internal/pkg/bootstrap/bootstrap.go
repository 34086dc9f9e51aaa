// Package bootstrap builds the service graph shared by the server and the
// cron binaries.
package bootstrap

import (
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/repository"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/billing"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/env"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/events"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/ledger"
)

// Services is the wired service graph.
type Services struct {
	DB           *gorm.DB
	Repositories *repository.Repositories
	Publisher    events.Publisher
	Ledger       *ledger.Service
	Billing      *billing.Service
	Engine       *allocation.Engine
	Scheduler    *allocation.Scheduler
}

// NewPublisher returns a Kafka publisher when KAFKA_BROKERS is set and a
// no-op publisher otherwise.
func NewPublisher() events.Publisher {
	brokers := env.GetEnvList("KAFKA_BROKERS")
	if len(brokers) == 0 {
		return events.Nop{}
	}
	p, err := events.NewKafkaPublisher(brokers, env.GetEnv("KAFKA_TOPIC", events.TopicLedger))
	if err != nil {
		log.Warnf("[Events] Kafka publisher disabled: %v", err)
		return events.Nop{}
	}
	return p
}

// NewServices wires the ledger, billing and allocation services on db.
// fetcher may be nil when no Stripe key is configured; renewals then fail
// and are redelivered by Stripe.
func NewServices(db *gorm.DB, publisher events.Publisher, fetcher billing.SubscriptionFetcher) *Services {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if fetcher == nil {
		fetcher = billing.UnconfiguredFetcher{}
	}
	repos := repository.NewFactory(db).GetRepositories()
	led := ledger.NewService(db, ledger.WithPublisher(publisher))
	engine := allocation.NewEngine(db, led, repos,
		allocation.WithPublisher(publisher),
		allocation.WithConcurrency(env.GetEnvInt("ALLOCATION_CONCURRENCY", 4)),
	)
	return &Services{
		DB:           db,
		Repositories: repos,
		Publisher:    publisher,
		Ledger:       led,
		Billing:      billing.NewService(db, led, repos, fetcher, billing.WithPublisher(publisher)),
		Engine:       engine,
		Scheduler:    allocation.NewScheduler(engine, env.GetEnvInt("DISCREPANCY_LOOKBACK_MONTHS", 3)),
	}
}

// StripeFetcher returns the API fetcher for STRIPE_SECRET_KEY, or nil.
func StripeFetcher() billing.SubscriptionFetcher {
	key := env.GetEnv("STRIPE_SECRET_KEY", "")
	if key == "" {
		log.Warn("[Billing] STRIPE_SECRET_KEY is not set, subscription renewals cannot be synced")
		return nil
	}
	return billing.NewStripeFetcher(key)
}
