package harness

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// SchemaSource returns the CUE schema scenario files are validated against.
func SchemaSource() string {
	return schemaSource
}

// ErrSchema marks scenarios rejected by the schema.
var ErrSchema = errors.New("schema")

type compiledSchema struct {
	ctx      *cue.Context
	scenario cue.Value
}

var loadSchema = sync.OnceValues(func() (*compiledSchema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Scenario"))
	if !def.Exists() {
		return nil, fmt.Errorf("scenario schema has no #Scenario definition")
	}
	return &compiledSchema{ctx: ctx, scenario: def}, nil
})

// schemaMu guards the shared cue.Context, which is not safe for concurrent use.
var schemaMu sync.Mutex

// ValidateSchema checks scenario YAML against the embedded CUE schema.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%w: empty scenario", ErrSchema)
	}

	schema, err := loadSchema()
	if err != nil {
		return err
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := schema.ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if err := schema.scenario.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}
