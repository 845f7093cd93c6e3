package oai

import (
	"context"
	"flag"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/stream"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const (
	GranularitySeconds = "seconds"
	GranularityDay     = "day"

	verbListRecords = "ListRecords"
)

type Config struct {
	URL            string        `yaml:"url"`
	MetadataPrefix string        `yaml:"metadata_prefix"`
	Granularity    string        `yaml:"granularity"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryMax       int           `yaml:"retry_max"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.URL, flagPrefix+"url", "", `OAI-PMH endpoint of the EPrints repository.`)
	f.StringVar(&c.MetadataPrefix, flagPrefix+"metadata-prefix", "oai_dc", `Metadata format requested from the repository.`)
	f.StringVar(&c.Granularity, flagPrefix+"granularity", GranularitySeconds, `Datestamp granularity of the repository: seconds or day.`)
	f.DurationVar(&c.Timeout, flagPrefix+"timeout", 30*time.Second, `Timeout of a single OAI-PMH request.`)
	f.IntVar(&c.RetryMax, flagPrefix+"retry-max", 5, `Maximum retries of a failed OAI-PMH request.`)
}

// Client harvests records from an OAI-PMH endpoint.
type Client struct {
	cfg        Config
	log        log.Logger
	httpClient *retryablehttp.Client
}

func NewClient(cfg Config, logger log.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, errors.Wrap(err, "oai: invalid repository url")
	}

	if cfg.MetadataPrefix == "" {
		cfg.MetadataPrefix = "oai_dc"
	}

	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.HTTPClient.Timeout = cfg.Timeout
	c.Logger = nil

	return &Client{
		cfg:        cfg,
		log:        log.With(logger, "component", "oai"),
		httpClient: c,
	}, nil
}

// RecordsSince returns the records modified at or after from, in repository
// order. Pages are requested only when the previous one has been consumed.
func (c *Client) RecordsSince(ctx context.Context, from time.Time) stream.Iterator {
	return &recordIterator{
		client: c,
		from:   from,
	}
}

func (c *Client) firstPageQuery(from time.Time) url.Values {
	q := url.Values{}
	q.Set("verb", verbListRecords)
	q.Set("metadataPrefix", c.cfg.MetadataPrefix)
	q.Set("from", c.formatFrom(from))
	return q
}

func (c *Client) resumeQuery(token string) url.Values {
	q := url.Values{}
	q.Set("verb", verbListRecords)
	q.Set("resumptionToken", token)
	return q
}

// Truncate rounds t down to the datestamp granularity of the repository.
func (c *Client) Truncate(t time.Time) time.Time {
	t = t.UTC()
	if c.cfg.Granularity == GranularityDay {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	return t.Truncate(time.Second)
}

func (c *Client) formatFrom(from time.Time) string {
	if c.cfg.Granularity == GranularityDay {
		return from.UTC().Format("2006-01-02")
	}

	return from.UTC().Format("2006-01-02T15:04:05Z")
}

func (c *Client) fetchPage(ctx context.Context, q url.Values) (*page, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "oai: parse repository url")
	}
	u.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "oai: create request")
	}

	_ = level.Debug(c.log).Log("msg", "requesting records", "url", u.String())
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "oai: list records")
	}
	defer resp.Body.Close()

	if err := ensureSuccessStatusCode(resp); err != nil {
		return nil, errors.Wrap(err, "oai: list records")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "oai: read response")
	}

	return decodePage(body)
}

func ensureSuccessStatusCode(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New("http response did not indicate success status code: " + resp.Status)
	}
	return nil
}

type recordIterator struct {
	client *Client
	from   time.Time

	buf     []*record.Record
	token   string
	started bool
	done    bool
}

func (it *recordIterator) Next(ctx context.Context) (*record.Record, bool, error) {
	for len(it.buf) == 0 {
		if it.done {
			return nil, false, nil
		}

		var q url.Values
		if !it.started {
			q = it.client.firstPageQuery(it.from)
		} else {
			q = it.client.resumeQuery(it.token)
		}

		p, err := it.client.fetchPage(ctx, q)
		if err != nil {
			it.done = true
			return nil, false, err
		}

		it.started = true
		it.buf = p.records
		it.token = p.token
		it.done = p.token == ""
	}

	rec := it.buf[0]
	it.buf = it.buf[1:]
	return rec, true, nil
}
