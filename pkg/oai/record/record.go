package record

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IdentifierField is the Dublin Core field whose values carry either
// bibliographic identifiers or links to the record's files.
const IdentifierField = "identifier"

// Record is a single harvested repository item. Records are produced by the
// metadata source and never mutated afterwards.
type Record struct {
	Identifier string
	Datestamp  time.Time
	Metadata   map[string][]string
}

func New(identifier string, datestamp time.Time, metadata map[string][]string) *Record {
	if metadata == nil {
		metadata = make(map[string][]string)
	}

	return &Record{
		Identifier: identifier,
		Datestamp:  datestamp,
		Metadata:   metadata,
	}
}

// Values returns the values of a metadata field in source order.
func (r *Record) Values(field string) []string {
	return r.Metadata[field]
}

// First returns the first value of a metadata field or an empty string.
func (r *Record) First(field string) string {
	vals := r.Metadata[field]
	if len(vals) == 0 {
		return ""
	}

	return vals[0]
}

func (r *Record) String() string {
	return fmt.Sprintf("%s@%s", r.Identifier, r.Datestamp.UTC().Format(time.RFC3339))
}

// IsFileURL reports whether an identifier value is an absolute http(s) link.
func IsFileURL(value string) bool {
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return false
	}

	u, err := url.Parse(value)
	if err != nil {
		return false
	}

	return u.Host != ""
}
