package oai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/stream"
	"github.com/ValerySidorin/eprints-adaptor/pkg/stream/streamtest"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firstPage = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <responseDate>2023-03-14T10:00:00Z</responseDate>
  <request verb="ListRecords">http://eprints.test/cgi/oai2</request>
  <ListRecords>
    <record>
      <header>
        <identifier>hdl:1765/1163</identifier>
        <datestamp>2004-02-16T14:10:55Z</datestamp>
      </header>
      <metadata>
        <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
          <dc:title>Mobile operators as banks or vice-versa? and: the challenges of Mobile channels for banks</dc:title>
          <dc:creator>Pau, L-F</dc:creator>
          <dc:subject>mobile networks</dc:subject>
          <dc:subject>banking</dc:subject>
          <dc:date>2004-02-16T13:51:07Z</dc:date>
          <dc:date>January 2004</dc:date>
          <dc:identifier>http://hdl.handle.net/1765/1163</dc:identifier>
          <dc:identifier>Pau, L-F (2004) Mobile operators as banks.</dc:identifier>
          <dc:type>Working Paper</dc:type>
        </oai_dc:dc>
      </metadata>
    </record>
    <record>
      <header status="deleted">
        <identifier>hdl:1765/1164</identifier>
        <datestamp>2004-02-17T09:00:00Z</datestamp>
      </header>
    </record>
    <resumptionToken cursor="0" completeListSize="2">page-2</resumptionToken>
  </ListRecords>
</OAI-PMH>`

const secondPage = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListRecords>
    <record>
      <header>
        <identifier>hdl:1765/1170</identifier>
        <datestamp>2004-02-18</datestamp>
      </header>
      <metadata>
        <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
          <dc:title>Second page</dc:title>
        </oai_dc:dc>
      </metadata>
    </record>
    <resumptionToken cursor="1" completeListSize="2"/>
  </ListRecords>
</OAI-PMH>`

const noRecords = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="noRecordsMatch">No items match. None. None at all.</error>
</OAI-PMH>`

const badArgument = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="badArgument">from is not a valid datestamp</error>
</OAI-PMH>`

func newTestClient(t *testing.T, url string) *Client {
	c, err := NewClient(Config{URL: url, Timeout: time.Second}, log.NewNopLogger())
	require.NoError(t, err)
	return c
}

func pagedServer(requests *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		if r.URL.Query().Get("resumptionToken") == "page-2" {
			_, _ = w.Write([]byte(secondPage))
			return
		}
		_, _ = w.Write([]byte(firstPage))
	}))
}

func TestRecordsSince(t *testing.T) {
	var requests int32
	srv := pagedServer(&requests)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	recs, err := streamtest.Collect(context.Background(), c.RecordsSince(context.Background(), time.Unix(0, 0)))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	rec := recs[0]
	assert.Equal(t, "hdl:1765/1163", rec.Identifier)
	assert.Equal(t, time.Date(2004, 2, 16, 14, 10, 55, 0, time.UTC), rec.Datestamp)
	assert.Equal(t, []string{"Pau, L-F"}, rec.Values("creator"))
	assert.Equal(t, []string{"mobile networks", "banking"}, rec.Values("subject"))
	assert.Equal(t, []string{"2004-02-16T13:51:07Z", "January 2004"}, rec.Values("date"))
	assert.Equal(t, []string{"http://hdl.handle.net/1765/1163", "Pau, L-F (2004) Mobile operators as banks."}, rec.Values("identifier"))

	assert.Equal(t, "hdl:1765/1170", recs[1].Identifier)
	assert.Equal(t, time.Date(2004, 2, 18, 0, 0, 0, 0, time.UTC), recs[1].Datestamp)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestRecordsSinceRequestsPagesLazily(t *testing.T) {
	var requests int32
	srv := pagedServer(&requests)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	recs, err := streamtest.Collect(context.Background(), stream.Take(c.RecordsSince(context.Background(), time.Unix(0, 0)), 1))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestRecordsSinceSendsFrom(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(noRecords))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	from := time.Date(2023, 3, 14, 10, 30, 0, 0, time.FixedZone("MSK", 3*60*60))
	recs, err := streamtest.Collect(context.Background(), c.RecordsSince(context.Background(), from))
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Contains(t, query, "from=2023-03-14T07%3A30%3A00Z")
	assert.Contains(t, query, "metadataPrefix=oai_dc")
	assert.Contains(t, query, "verb=ListRecords")
}

func TestRecordsSinceRepositoryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(badArgument))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, ok, err := c.RecordsSince(context.Background(), time.Unix(0, 0)).Next(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "badArgument")
}

func TestRecordsSinceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, ok, err := c.RecordsSince(context.Background(), time.Unix(0, 0)).Next(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

type statusTest struct {
	resp   http.Response
	output bool
}

var statusTests = []statusTest{
	{http.Response{StatusCode: 200}, true},
	{http.Response{StatusCode: 102}, false},
	{http.Response{StatusCode: 301}, false},
	{http.Response{StatusCode: 404}, false},
	{http.Response{StatusCode: 500}, false},
}

func TestEnsureSuccessStatusCode(t *testing.T) {
	for _, v := range statusTests {
		resp := v.resp
		err := ensureSuccessStatusCode(&resp)
		assert.Equal(t, v.output, err == nil)
	}
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	_, err := NewClient(Config{URL: "not a url"}, log.NewNopLogger())
	assert.Error(t, err)
}

type truncateTest struct {
	granularity string
	in          time.Time
	out         time.Time
}

var truncateTests = []truncateTest{
	{
		GranularitySeconds,
		time.Date(2023, 3, 14, 10, 30, 15, 999999999, time.UTC),
		time.Date(2023, 3, 14, 10, 30, 15, 0, time.UTC),
	},
	{
		GranularityDay,
		time.Date(2023, 3, 14, 10, 30, 15, 500, time.UTC),
		time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC),
	},
	{
		GranularityDay,
		time.Date(2023, 3, 15, 1, 0, 0, 0, time.FixedZone("MSK", 3*60*60)),
		time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC),
	},
}

func TestTruncate(t *testing.T) {
	for _, v := range truncateTests {
		c, err := NewClient(Config{URL: "https://repub.eur.nl/oai", Granularity: v.granularity}, log.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, v.out, c.Truncate(v.in), v.granularity)
	}
}
