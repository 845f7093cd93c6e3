package rdss

import (
	"bytes"
	"encoding/json"
	"flag"
	"strings"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/relocator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Config struct {
	JiscID                  int    `yaml:"jisc_id"`
	OrganisationName        string `yaml:"organisation_name"`
	APISpecificationVersion string `yaml:"api_specification_version"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.IntVar(&c.JiscID, flagPrefix+"jisc-id", 0, `Jisc id of the organisation hosting the repository.`)
	f.StringVar(&c.OrganisationName, flagPrefix+"organisation-name", "", `Name of the organisation hosting the repository.`)
	f.StringVar(&c.APISpecificationVersion, flagPrefix+"api-specification-version", DefaultVersion, `Message API specification version messages are generated for and validated against.`)
}

var resourceTypes = map[string]string{
	"article":                     "journalArticle",
	"book":                        "book",
	"book section":                "bookSection",
	"conference or workshop item": "conferenceProceeding",
	"thesis":                      "thesis",
	"working paper":               "workingPaper",
	"monograph":                   "monograph",
	"dataset":                     "dataset",
}

// Generator builds MetadataCreate messages out of Dublin Core records.
type Generator struct {
	cfg Config
	now func() time.Time
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg: cfg,
		now: time.Now,
	}
}

func (g *Generator) Generate(rec *record.Record, files []*relocator.File) (string, error) {
	title := strings.TrimSpace(rec.First("title"))
	if title == "" {
		return "", errors.Errorf("rdss: record %s has no title", rec.Identifier)
	}

	ts := g.now().UTC().Format(time.RFC3339)
	org := Organisation{
		OrganisationJiscID: g.cfg.JiscID,
		OrganisationName:   g.cfg.OrganisationName,
	}

	msg := Message{
		MessageHeader: MessageHeader{
			MessageID:    uuid.NewString(),
			MessageClass: messageClassCommand,
			MessageType:  messageTypeMetaCreate,
			MessageTimings: MessageTimings{
				PublishedTimestamp: ts,
			},
			MessageSequence: MessageSequence{
				Sequence: uuid.NewString(),
				Position: 1,
				Total:    1,
			},
			MessageHistory: []MessageHistory{{
				MachineID: machineID,
				Timestamp: ts,
			}},
			Version:   g.cfg.APISpecificationVersion,
			Generator: machineID,
		},
		MessageBody: MessageBody{
			ObjectUUID:  uuid.NewString(),
			ObjectTitle: title,
			ObjectPersonRole: append(
				personRoles(rec.Values("creator"), "author"),
				personRoles(rec.Values("contributor"), "contributor")...),
			ObjectDescription: strings.Join(lo.Uniq(rec.Values("description")), "\n\n"),
			ObjectRights: Rights{
				RightsStatement: nonNil(rec.Values("rights")),
			},
			ObjectDate:         dates(rec),
			ObjectKeywords:     nonNil(lo.Uniq(rec.Values("subject"))),
			ObjectCategory:     nonNil(lo.Uniq(rec.Values("type"))),
			ObjectResourceType: resourceType(rec.First("type")),
			ObjectValue:        "normal",
			ObjectIdentifier:   identifiers(rec),
			ObjectOrganisationRole: []OrganisationRole{{
				Organisation: org,
				Role:         "hostingInstitution",
			}},
			ObjectFile: lo.Map(files, func(f *relocator.File, _ int) File {
				return File{
					FileUUID:            uuid.NewString(),
					FileIdentifier:      f.SourceURL,
					FileName:            f.Name,
					FileSize:            f.Size,
					FileStorageLocation: f.Location,
					FileStoragePlatform: StoragePlatform{StoragePlatformType: storagePlatformS3},
				}
			}),
		},
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return "", errors.Wrap(err, "rdss: encode message")
	}

	return strings.TrimRight(buf.String(), "\n"), nil
}

func personRoles(names []string, role string) []PersonRole {
	return lo.Map(lo.Uniq(names), func(name string, _ int) PersonRole {
		family, given := splitName(name)
		return PersonRole{
			Person: Person{
				PersonUUID:        uuid.NewString(),
				PersonGivenNames:  given,
				PersonFamilyNames: family,
			},
			Role: role,
		}
	})
}

// splitName splits "Family, Given" names. Names without a comma are treated
// as family names only.
func splitName(name string) (string, string) {
	parts := strings.SplitN(name, ",", 2)
	if len(parts) == 1 {
		return strings.TrimSpace(parts[0]), ""
	}

	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func dates(rec *record.Record) []Date {
	res := make([]Date, 0)
	for i, d := range lo.Uniq(rec.Values("date")) {
		typ := "published"
		if i > 0 {
			typ = "other"
		}
		res = append(res, Date{DateValue: d, DateType: typ})
	}

	if len(res) == 0 {
		res = append(res, Date{
			DateValue: rec.Datestamp.UTC().Format(time.RFC3339),
			DateType:  "modified",
		})
	}

	return res
}

func identifiers(rec *record.Record) []Identifier {
	res := []Identifier{{
		IdentifierValue: rec.Identifier,
		IdentifierType:  "oai",
	}}

	for _, v := range rec.Values(record.IdentifierField) {
		typ := identifierType(v)
		if typ == "" {
			continue
		}
		res = append(res, Identifier{IdentifierValue: v, IdentifierType: typ})
	}

	return res
}

func identifierType(v string) string {
	lv := strings.ToLower(v)
	switch {
	case strings.HasPrefix(lv, "doi:"), strings.HasPrefix(lv, "https://doi.org/"), strings.HasPrefix(lv, "http://dx.doi.org/"):
		return "doi"
	case strings.HasPrefix(lv, "hdl:"), strings.Contains(lv, "hdl.handle.net/"):
		return "handle"
	case record.IsFileURL(v):
		return "url"
	}

	return ""
}

func resourceType(t string) string {
	if rt, ok := resourceTypes[strings.ToLower(strings.TrimSpace(t))]; ok {
		return rt
	}

	return "other"
}

func nonNil(vals []string) []string {
	if vals == nil {
		return []string{}
	}

	return vals
}
