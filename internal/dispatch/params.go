package dispatch

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// params is implemented by every method's parameter struct.
type params interface {
	DomainName() string
}

// ListGroupsByOUParams are the parameters of list_groups_by_ou.
type ListGroupsByOUParams struct {
	OUDN   string `mapstructure:"ou_dn"`
	Domain string `mapstructure:"domain"`
}

// ListUsersByGroupParams are the parameters of list_users_by_group.
type ListUsersByGroupParams struct {
	GroupDN string `mapstructure:"group_dn"`
	OUDN    string `mapstructure:"ou_dn"`
	Domain  string `mapstructure:"domain"`
}

// CreateGroupParams are the parameters of create_group. Description may be
// omitted or null.
type CreateGroupParams struct {
	CN          string  `mapstructure:"cn"`
	OUDN        string  `mapstructure:"ou_dn"`
	Domain      string  `mapstructure:"domain"`
	Description *string `mapstructure:"description"`
}

// GetUserCertificatesParams are the parameters of get_user_certificates.
type GetUserCertificatesParams struct {
	UserGUID string `mapstructure:"user_guid"`
	OUDN     string `mapstructure:"ou_dn"`
	Domain   string `mapstructure:"domain"`
}

func (p ListGroupsByOUParams) DomainName() string      { return p.Domain }
func (p ListUsersByGroupParams) DomainName() string    { return p.Domain }
func (p CreateGroupParams) DomainName() string         { return p.Domain }
func (p GetUserCertificatesParams) DomainName() string { return p.Domain }

// schemaSet holds the compiled parameter schema of every method.
type schemaSet map[Method]*jsonschema.Schema

// compileSchemas compiles the embedded schema of each method.
func compileSchemas() (schemaSet, error) {
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	set := make(schemaSet, len(Methods()))
	for _, method := range Methods() {
		name := string(method) + ".json"

		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}

		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}

		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}

		set[method] = schema
	}

	return set, nil
}

// validate checks raw against the method's schema and returns the decoded
// instance ready for mapstructure.
func (s schemaSet) validate(method Method, raw json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parameters: invalid JSON: %w", err)
	}

	schema, ok := s[method]
	if !ok {
		return nil, fmt.Errorf("no parameter schema for method %q", method)
	}

	if err := schema.Validate(instance); err != nil {
		return nil, formatSchemaError(err)
	}

	object, ok := instance.(map[string]any)
	if !ok {
		return nil, errors.New("parameters: must be an object")
	}

	return object, nil
}

var schemaPrinter = message.NewPrinter(language.English)

// formatSchemaError flattens a validation error into one line per failing
// field, e.g. "parameters.ou_dn: minLength: got 2, want 3".
func formatSchemaError(err error) error {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return fmt.Errorf("parameters: %w", err)
	}

	var lines []string
	for _, leaf := range leafCauses(validationErr) {
		path := "parameters"
		for _, part := range leaf.InstanceLocation {
			if part != "" {
				path += "." + part
			}
		}
		lines = append(lines, path+": "+leaf.ErrorKind.LocalizedString(schemaPrinter))
	}

	return errors.New(strings.Join(lines, "; "))
}

func leafCauses(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}

	var leaves []*jsonschema.ValidationError
	for _, cause := range err.Causes {
		leaves = append(leaves, leafCauses(cause)...)
	}
	return leaves
}

// decodeParams decodes a schema-checked instance into the typed struct,
// rejecting keys the struct does not declare.
func decodeParams(instance map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		TagName:     "mapstructure",
		Result:      out,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(instance); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}

	return nil
}
