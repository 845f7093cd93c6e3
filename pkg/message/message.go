package message

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/relocator"
	"github.com/pkg/errors"
)

type ErrorCode string

const (
	// ErrInvalidMessage is reported when a message fails schema validation.
	ErrInvalidMessage ErrorCode = "GENERR001"
	// ErrMalformedJSON is reported when a message does not survive a parse and re-emit.
	ErrMalformedJSON ErrorCode = "GENERR007"
	// ErrUnexpected covers every other failure.
	ErrUnexpected ErrorCode = "GENERR009"

	headerField       = "messageHeader"
	errorCodeField    = "errorCode"
	errorMessageField = "errorMessage"
)

// Generator builds a message from a harvested record and the files that were
// relocated for it.
type Generator interface {
	Generate(rec *record.Record, files []*relocator.File) (string, error)
}

// Validator checks a message against the message schema. Shutdown releases
// the validator; it is called once at the end of a run.
type Validator interface {
	Validate(msg string) error
	Shutdown()
}

// Canonicalize parses msg and serializes it again.
func Canonicalize(msg string) (string, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(msg)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", errors.Wrap(err, "message: parse")
	}

	if _, err := dec.Token(); err != io.EOF {
		return "", errors.New("message: unexpected data after top-level value")
	}

	out, err := marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "message: serialize")
	}

	return out, nil
}

// Decorate adds errorCode and errorMessage to the message header. The reason
// is stored JSON-quoted. When msg is not a JSON object it is returned as is
// together with an error.
func Decorate(msg string, code ErrorCode, reason string) (string, error) {
	obj := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader([]byte(msg)))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return msg, errors.Wrap(err, "message: decorate")
	}

	if obj == nil {
		return msg, errors.New("message: decorate: not a JSON object")
	}

	header, ok := obj[headerField].(map[string]interface{})
	if !ok {
		header = make(map[string]interface{})
	}

	quoted, err := marshal(reason)
	if err != nil {
		return msg, errors.Wrap(err, "message: decorate")
	}

	header[errorCodeField] = string(code)
	header[errorMessageField] = quoted
	obj[headerField] = header

	out, err := marshal(obj)
	if err != nil {
		return msg, errors.Wrap(err, "message: decorate")
	}

	return out, nil
}

func marshal(v interface{}) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}

	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
