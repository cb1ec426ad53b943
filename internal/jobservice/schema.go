package jobservice

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// statusSchemaJSON describes the GET /jobs/{id} body. Unknown fields are allowed so
// newer service versions keep working.
const statusSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["status"],
  "properties": {
    "id": {"type": "string"},
    "status": {"enum": ["pending", "running", "completed", "failed", "cancelled"]},
    "position_in_queue": {"type": ["integer", "null"], "minimum": 0},
    "error": {"type": ["string", "null"]},
    "estimated_wait_time": {"type": ["number", "null"]}
  }
}`

var statusSchema = jsonschema.MustCompileString("job-status.json", statusSchemaJSON)

// validateStatus checks a status body against the schema before it is decoded.
func validateStatus(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	if err := statusSchema.Validate(v); err != nil {
		return fmt.Errorf("status does not match schema: %w", err)
	}
	return nil
}
