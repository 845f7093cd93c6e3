package adaptor

import (
	"flag"
	"io"
	"os"
	"strings"

	"github.com/ValerySidorin/eprints-adaptor/pkg/harvester"
	"github.com/ValerySidorin/eprints-adaptor/pkg/message/rdss"
	"github.com/ValerySidorin/eprints-adaptor/pkg/oai"
	"github.com/ValerySidorin/eprints-adaptor/pkg/objstore"
	"github.com/ValerySidorin/eprints-adaptor/pkg/processor"
	"github.com/ValerySidorin/eprints-adaptor/pkg/queue"
	"github.com/ValerySidorin/eprints-adaptor/pkg/relocator"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state"
	util_log "github.com/ValerySidorin/eprints-adaptor/pkg/util/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const configFileOption = "config.file"

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

func (c *MetricsConfig) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.PushgatewayURL, flagPrefix+"pushgateway-url", "", `Pushgateway the run metrics are pushed to when the run ends. Empty disables pushing.`)
	f.StringVar(&c.Job, flagPrefix+"job", "eprints_adaptor", `Job name metrics are pushed under.`)
}

type Config struct {
	ConfigFile string `yaml:"-"`

	Log       util_log.Config  `yaml:",inline"`
	Source    oai.Config       `yaml:"source"`
	Message   rdss.Config      `yaml:"message"`
	State     state.Config     `yaml:"state"`
	ObjStore  objstore.Config  `yaml:"objstore"`
	Relocator relocator.Config `yaml:"relocator"`
	Queue     queue.Config     `yaml:"queue"`
	Processor processor.Config `yaml:"processor"`
	Harvester harvester.Config `yaml:"harvester"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.ConfigFile, configFileOption, "", `YAML configuration file. Environment variables referenced in it are expanded.`)

	c.Log.RegisterFlags(f)
	c.Source.RegisterFlags("source.", f)
	c.Message.RegisterFlags("message.", f)
	c.State.RegisterFlags("state.", f)
	c.ObjStore.RegisterFlags("objstore.", f)
	c.Relocator.RegisterFlags("relocator.", f)
	c.Queue.RegisterFlags("queue.", f)
	c.Processor.RegisterFlags("processor.", f)
	c.Harvester.RegisterFlags("harvester.", f)
	c.Metrics.RegisterFlags("metrics.", f)
}

// Validate reports every required setting that is missing or invalid in a
// single error.
func (c *Config) Validate() error {
	missing := make([]string, 0)
	require := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}

	require(c.Source.URL != "", "source.url")
	require(c.Message.JiscID > 0, "message.jisc_id")
	require(c.Message.OrganisationName != "", "message.organisation_name")
	require(c.Message.APISpecificationVersion != "", "message.api_specification_version")

	require(c.State.Store != "", "state.store")
	switch c.State.Store {
	case "pg":
		require(c.State.Pg.Conn != "", "state.pg.conn")
	case "redis":
		require(c.State.Redis.Addr != "", "state.redis.addr")
	}

	require(c.ObjStore.Store != "", "objstore.store")
	require(c.ObjStore.Bucket != "", "objstore.bucket")
	if c.ObjStore.Store == "minio" {
		require(c.ObjStore.Minio.Endpoint != "", "objstore.minio.endpoint")
	}

	require(c.Queue.Type != "", "queue.type")
	require(c.Queue.PrimaryChannel != "", "queue.primary_channel")
	require(c.Queue.InvalidChannel != "", "queue.invalid_channel")
	switch c.Queue.Type {
	case "nats":
		require(c.Queue.Nats.Url != "", "queue.nats.url")
	case "kafka":
		require(len(c.Queue.Kafka.Brokers) > 0, "queue.kafka.brokers")
	}

	require(c.Harvester.FlowLimit > 0, "harvester.flow_limit")

	if len(missing) > 0 {
		return errors.Errorf("missing or invalid configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// LoadFile reads a YAML config file on top of cfg, expanding environment
// variables first.
func LoadFile(filename string, cfg *Config) error {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}

	if err := yaml.UnmarshalStrict([]byte(os.ExpandEnv(string(buf))), cfg); err != nil {
		return errors.Wrapf(err, "parse config file %s", filename)
	}

	return nil
}

// ConfigFileParameter finds -config.file in args without failing on the
// other flags, which are parsed later.
func ConfigFileParameter(args []string) string {
	var configFile string
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, configFileOption, "", "")

	for len(args) > 0 {
		_ = fs.Parse(args)
		args = args[1:]
	}

	return configFile
}
