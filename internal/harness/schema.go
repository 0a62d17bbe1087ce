package harness

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// SchemaError lists every schema violation found in a scenario document.
type SchemaError struct {
	Messages []string
}

func (e *SchemaError) Error() string {
	return "schema: " + strings.Join(e.Messages, "; ")
}

// validateSchema checks a decoded YAML document against #Scenario.
func validateSchema(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Messages: cueMessages(err)}
	}
	return nil
}

func cueMessages(err error) []string {
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		msgs = append(msgs, cueerrors.String(e))
	}
	sort.Strings(msgs)
	return msgs
}
