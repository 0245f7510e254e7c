package program

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema reflects the program JSON schema from the Go types.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := r.ReflectFromType(reflect.TypeOf(Program{}))
	s.Version = ""
	s.Title = "Drone Program"
	s.Description = "Drones and the ordered block-search steps they run."
	return s
}

func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}

var (
	compileOnce sync.Once
	compiledSch *validator.Schema
	compileErr  error
)

func compiled() (*validator.Schema, error) {
	compileOnce.Do(func() {
		raw, err := SchemaJSON()
		if err != nil {
			compileErr = fmt.Errorf("program schema: %w", err)
			return
		}
		compiledSch, compileErr = validator.CompileString("program.schema.json", string(raw))
		if compileErr != nil {
			compileErr = fmt.Errorf("program schema: %w", compileErr)
		}
	})
	return compiledSch, compileErr
}
