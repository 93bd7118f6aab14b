package scenario

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed night.schema.json
var nightSchemaJSON []byte

// ValidateSchema checks raw night JSON against the embedded JSON Schema.
// The returned errors cover structure only; referential checks (dangling
// segment IDs, unknown flags) are Night.Validate's job.
func ValidateSchema(data []byte) []string {
	var schemaDoc interface{}
	if err := json.Unmarshal(nightSchemaJSON, &schemaDoc); err != nil {
		return []string{fmt.Sprintf("failed to parse embedded schema: %v", err)}
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("night.schema.json", schemaDoc); err != nil {
		return []string{fmt.Sprintf("failed to add schema resource: %v", err)}
	}
	sch, err := c.Compile("night.schema.json")
	if err != nil {
		return []string{fmt.Sprintf("failed to compile schema: %v", err)}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("invalid JSON: %v", err)}
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return []string{err.Error()}
		}
		var errs []string
		for _, cause := range flattenCauses(ve) {
			path := "/" + strings.Join(cause.InstanceLocation, "/")
			errs = append(errs, fmt.Sprintf("%s: %v", path, cause.ErrorKind))
		}
		return errs
	}
	return nil
}

// flattenCauses recursively collects all leaf validation errors.
func flattenCauses(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var flat []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenCauses(cause)...)
	}
	return flat
}
