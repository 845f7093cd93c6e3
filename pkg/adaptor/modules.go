package adaptor

import (
	"context"

	"github.com/ValerySidorin/eprints-adaptor/pkg/filter"
	"github.com/ValerySidorin/eprints-adaptor/pkg/harvester"
	"github.com/ValerySidorin/eprints-adaptor/pkg/message/rdss"
	"github.com/ValerySidorin/eprints-adaptor/pkg/oai"
	"github.com/ValerySidorin/eprints-adaptor/pkg/objstore"
	"github.com/ValerySidorin/eprints-adaptor/pkg/processor"
	"github.com/ValerySidorin/eprints-adaptor/pkg/queue"
	"github.com/ValerySidorin/eprints-adaptor/pkg/relocator"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state"
	util_log "github.com/ValerySidorin/eprints-adaptor/pkg/util/log"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
)

const (
	State     = "state"
	ObjStore  = "objstore"
	Queue     = "queue"
	Message   = "message"
	Harvester = "harvester"
	All       = "all"
)

func (a *Adaptor) initState() (services.Service, error) {
	var err error
	a.Store, err = state.NewStore(context.Background(), a.Cfg.State, util_log.Component(util_log.Logger, "state"))
	if err != nil {
		return nil, errors.Wrap(err, "connect to state store")
	}

	return services.NewIdleService(nil, func(_ error) error {
		return a.Store.Dispose(context.Background())
	}), nil
}

func (a *Adaptor) initObjStore() (services.Service, error) {
	var err error
	a.Writer, err = objstore.NewWriter(context.Background(), a.Cfg.ObjStore)
	if err != nil {
		return nil, errors.Wrap(err, "connect to object store")
	}

	return nil, nil
}

func (a *Adaptor) initQueue() (services.Service, error) {
	pub, err := queue.NewPublisher(a.Cfg.Queue, util_log.Component(util_log.Logger, "queue"))
	if err != nil {
		return nil, errors.Wrap(err, "connect to queue")
	}
	a.Output = queue.NewOutput(pub, a.Cfg.Queue.PrimaryChannel, a.Cfg.Queue.InvalidChannel)

	return services.NewIdleService(nil, func(_ error) error {
		return a.Output.Close()
	}), nil
}

func (a *Adaptor) initMessage() (services.Service, error) {
	var err error
	a.Validator, err = rdss.NewValidator(a.Cfg.Message.APISpecificationVersion)
	if err != nil {
		return nil, errors.Wrap(err, "init message validator")
	}
	a.Generator = rdss.NewGenerator(a.Cfg.Message)

	return nil, nil
}

func (a *Adaptor) initHarvester() (services.Service, error) {
	logger := util_log.Logger

	source, err := oai.NewClient(a.Cfg.Source, util_log.Component(logger, "oai"))
	if err != nil {
		return nil, errors.Wrap(err, "init metadata source")
	}

	proc := processor.New(
		a.Cfg.Processor,
		relocator.New(a.Cfg.Relocator, a.Writer, logger),
		a.Generator,
		a.Validator,
		a.Output,
		a.Store,
		a.Registry,
		logger,
	)

	a.Harvester, err = harvester.New(a.Cfg.Harvester, a.harvesterDeps(source, proc), a.Registry, logger)
	if err != nil {
		return nil, err
	}

	return a.Harvester, nil
}

// harvesterDeps leaves Output and Validator as nil interfaces when the
// modules providing them are absent.
func (a *Adaptor) harvesterDeps(source harvester.Source, proc harvester.Processor) harvester.Deps {
	deps := harvester.Deps{
		Source:    source,
		Store:     a.Store,
		Filter:    filter.New(a.Store, util_log.Component(util_log.Logger, "filter")),
		Processor: proc,
	}
	if a.Output != nil {
		deps.Output = a.Output
	}
	if a.Validator != nil {
		deps.Validator = a.Validator
	}

	return deps
}

func (a *Adaptor) setupModuleManager() error {
	mm := modules.NewManager(util_log.Logger)

	mm.RegisterModule(State, a.initState, modules.UserInvisibleModule)
	mm.RegisterModule(ObjStore, a.initObjStore, modules.UserInvisibleModule)
	mm.RegisterModule(Queue, a.initQueue, modules.UserInvisibleModule)
	mm.RegisterModule(Message, a.initMessage, modules.UserInvisibleModule)
	mm.RegisterModule(Harvester, a.initHarvester)
	mm.RegisterModule(All, nil)

	deps := map[string][]string{
		Harvester: {State, ObjStore, Queue, Message},
		All:       {Harvester},
	}
	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	a.ModuleManager = mm
	return nil
}
