package oai

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/pkg/errors"
)

const (
	errNoRecordsMatch = "noRecordsMatch"
	statusDeleted     = "deleted"
)

var datestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type envelope struct {
	XMLName     xml.Name    `xml:"OAI-PMH"`
	Errors      []oaiError  `xml:"error"`
	ListRecords listRecords `xml:"ListRecords"`
}

type oaiError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type listRecords struct {
	Records         []xmlRecord `xml:"record"`
	ResumptionToken string      `xml:"resumptionToken"`
}

type xmlRecord struct {
	Header   xmlHeader   `xml:"header"`
	Metadata xmlMetadata `xml:"metadata"`
}

type xmlHeader struct {
	Status     string `xml:"status,attr"`
	Identifier string `xml:"identifier"`
	Datestamp  string `xml:"datestamp"`
}

// xmlMetadata holds whatever format container the repository returned
// (oai_dc:dc for EPrints) with its elements flattened.
type xmlMetadata struct {
	Container struct {
		Fields []xmlField `xml:",any"`
	} `xml:",any"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type page struct {
	records []*record.Record
	token   string
}

func decodePage(data []byte) (*page, error) {
	env := envelope{}
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "oai: decode response")
	}

	for _, e := range env.Errors {
		if e.Code == errNoRecordsMatch {
			return &page{}, nil
		}
	}

	if len(env.Errors) > 0 {
		e := env.Errors[0]
		return nil, errors.Errorf("oai: repository error %s: %s", e.Code, strings.TrimSpace(e.Message))
	}

	p := &page{
		records: make([]*record.Record, 0, len(env.ListRecords.Records)),
		token:   strings.TrimSpace(env.ListRecords.ResumptionToken),
	}

	for _, xr := range env.ListRecords.Records {
		if xr.Header.Status == statusDeleted {
			continue
		}

		ds, err := parseDatestamp(xr.Header.Datestamp)
		if err != nil {
			return nil, errors.Wrapf(err, "oai: record %s", xr.Header.Identifier)
		}

		metadata := make(map[string][]string)
		for _, f := range xr.Metadata.Container.Fields {
			name := f.XMLName.Local
			metadata[name] = append(metadata[name], strings.TrimSpace(f.Value))
		}

		p.records = append(p.records, record.New(strings.TrimSpace(xr.Header.Identifier), ds, metadata))
	}

	return p, nil
}

func parseDatestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range datestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, errors.Errorf("invalid datestamp %q", s)
}
