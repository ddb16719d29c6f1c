package backend

import (
	"time"

	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/services"
)

// ServicesConfig carries the service tunables read from config.
type ServicesConfig struct {
	RecurringHorizon int
	CacheSize        int
	CacheTTL         time.Duration
}

// Services is the full set of application services over one backend.
type Services struct {
	Audit      *services.AuditLog
	Leaves     *services.LeaveTracker
	Bills      *services.BillService
	Ledger     *services.LedgerService
	Members    *services.MemberService
	Categories *services.CategoryService
}

// NewServices builds the services on top of res. Audited mutations are
// published on AMQP when res has a client.
func NewServices(res *BackendResult, cfg ServicesConfig, clock core.Clock, logger *log.Logger) *Services {
	if clock == nil {
		clock = core.SystemClock{}
	}
	var publisher services.EventPublisher
	if res.AMQP != nil {
		publisher = res.AMQP
	}

	audit := services.NewAuditLog(res.Repos, publisher, logger)
	leaves := services.NewLeaveTracker(res.Repos, audit, clock, logger)
	bills := services.NewBillService(res.Repos, audit, res.Blobs, clock,
		services.BillServiceConfig{RecurringHorizon: cfg.RecurringHorizon}, logger)
	return &Services{
		Audit:  audit,
		Leaves: leaves,
		Bills:  bills,
		Ledger: services.NewLedgerService(res.Repos, bills, audit, res.Blobs, clock, logger),
		Members: services.NewMemberService(res.Repos, leaves, audit, res.Blobs, clock, services.MemberServiceConfig{
			CacheSize: cfg.CacheSize,
			CacheTTL:  cfg.CacheTTL,
		}, logger),
		Categories: services.NewCategoryService(res.Repos, audit, logger),
	}
}
