package adaptor

import (
	"context"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/harvester"
	"github.com/ValerySidorin/eprints-adaptor/pkg/message/rdss"
	"github.com/ValerySidorin/eprints-adaptor/pkg/objstore"
	"github.com/ValerySidorin/eprints-adaptor/pkg/queue"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state"
	util_log "github.com/ValerySidorin/eprints-adaptor/pkg/util/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/samber/lo"
)

type Adaptor struct {
	Cfg Config

	Registry *prometheus.Registry

	// set during initialization
	Store     state.Store
	Writer    objstore.Writer
	Output    *queue.Output
	Generator *rdss.Generator
	Validator *rdss.Validator
	Harvester *harvester.Harvester

	ServiceMap    map[string]services.Service
	ModuleManager *modules.Manager
}

func New(cfg Config) (*Adaptor, error) {
	a := &Adaptor{
		Cfg:      cfg,
		Registry: prometheus.NewRegistry(),
	}

	if err := a.setupModuleManager(); err != nil {
		return nil, errors.Wrap(err, "setup module manager")
	}

	return a, nil
}

// Run performs one harvest. Supporting modules are stopped once the
// harvester terminates; the returned error is the harvest failure, if any.
func (a *Adaptor) Run(ctx context.Context) error {
	serviceMap, err := a.ModuleManager.InitModuleServices(All)
	if err != nil {
		a.abort()
		return errors.Wrap(err, "init modules")
	}
	a.ServiceMap = serviceMap

	sm, err := services.NewManager(lo.Values(serviceMap)...)
	if err != nil {
		return errors.Wrap(err, "init service manager")
	}

	if err := sm.StartAsync(ctx); err != nil {
		return errors.Wrap(err, "start services")
	}

	runErr := serviceMap[Harvester].AwaitTerminated(context.Background())
	if runErr != nil && a.Harvester != nil && a.Harvester.FailureCase() != nil {
		runErr = a.Harvester.FailureCase()
	}

	sm.StopAsync()
	if err := sm.AwaitStopped(context.Background()); err != nil {
		_ = level.Error(util_log.Logger).Log("msg", "unable to stop services", "err", err)
	}

	for _, s := range sm.ServicesByState()[services.Failed] {
		if s == serviceMap[Harvester] {
			continue
		}
		_ = level.Error(util_log.Logger).Log("msg", "module failed", "err", s.FailureCase())
	}

	a.pushMetrics()
	return runErr
}

// abort releases whatever was initialized before a module failed to
// initialize. Consumers still see the primary channel closed.
func (a *Adaptor) abort() {
	logger := util_log.Logger

	if a.Output != nil {
		timeout := a.Cfg.Harvester.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := a.Output.ClosePrimary(ctx); err != nil {
			_ = level.Error(logger).Log("msg", "unable to close primary channel", "err", err)
		}
		if err := a.Output.Close(); err != nil {
			_ = level.Warn(logger).Log("msg", "unable to close queue", "err", err)
		}
	}

	if a.Validator != nil {
		a.Validator.Shutdown()
	}

	if a.Store != nil {
		if err := a.Store.Dispose(context.Background()); err != nil {
			_ = level.Warn(logger).Log("msg", "unable to dispose state store", "err", err)
		}
	}
}

func (a *Adaptor) pushMetrics() {
	if a.Cfg.Metrics.PushgatewayURL == "" {
		return
	}

	if err := push.New(a.Cfg.Metrics.PushgatewayURL, a.Cfg.Metrics.Job).Gatherer(a.Registry).Push(); err != nil {
		_ = level.Warn(util_log.Logger).Log("msg", "unable to push metrics", "err", err)
	}
}
