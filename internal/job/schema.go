package job

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// frameSchema describes the job frame. Emptiness of statuses is checked by
// FromWire so that it surfaces as ErrEmptyStatusHistory.
const frameSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "position", "company", "url", "created_at", "statuses"],
  "properties": {
    "id": {"type": "string"},
    "position": {"type": "string"},
    "company": {"type": "string"},
    "url": {"type": "string"},
    "image_filename": {"type": "string"},
    "image_url": {"type": "string"},
    "created_at": {"type": "string"},
    "updated_at": {"type": "string"},
    "notes": {"type": "string"},
    "statuses": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["status", "created_at"],
        "properties": {
          "status": {"type": "string"},
          "created_at": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(frameSchema))
	})
	return compiledSchema, schemaErr
}

// ValidateShape checks raw against the job frame schema.
func ValidateShape(raw []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("failed to compile job schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ShapeError{Violations: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	shapeErr := &ShapeError{Violations: make([]string, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		shapeErr.Violations = append(shapeErr.Violations, field+": "+desc.Description())
	}
	return shapeErr
}
