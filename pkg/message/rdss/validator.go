package rdss

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	DefaultVersion = "3.0.0"

	schemaName    = "metadata_create.json"
	schemaBaseURL = "https://eprints-adaptor.local/schema/"
)

//go:embed schema
var schemas embed.FS

// Validator checks messages against the MetadataCreate schema of one API
// specification version.
type Validator struct {
	mu     sync.RWMutex
	schema *jsonschema.Schema
}

func NewValidator(version string) (*Validator, error) {
	f, err := schemas.Open("schema/" + version + "/" + schemaName)
	if err != nil {
		return nil, errors.Wrapf(err, "rdss: unsupported api specification version %q", version)
	}
	defer f.Close()

	url := schemaBaseURL + version + "/" + schemaName
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(url, f); err != nil {
		return nil, errors.Wrap(err, "rdss: load schema")
	}

	sch, err := c.Compile(url)
	if err != nil {
		return nil, errors.Wrap(err, "rdss: compile schema")
	}

	return &Validator{schema: sch}, nil
}

func (v *Validator) Validate(msg string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.schema == nil {
		return errors.New("rdss: validator is shut down")
	}

	doc, err := unmarshalJSON(strings.NewReader(msg))
	if err != nil {
		return errors.Wrap(err, "rdss: parse message")
	}

	if err := v.schema.Validate(doc); err != nil {
		return errors.Wrap(err, "rdss: invalid message")
	}

	return nil
}

// unmarshalJSON decodes r into the value shape jsonschema/v5 expects
// (json.Number for numbers), rejecting trailing data like v5 does internally.
func unmarshalJSON(r io.Reader) (interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if t, _ := dec.Token(); t != nil {
		return nil, fmt.Errorf("invalid character %v after top-level value", t)
	}
	return doc, nil
}

func (v *Validator) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.schema = nil
}
