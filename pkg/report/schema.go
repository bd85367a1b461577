package report

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

// ErrSchema reports a snapshot document that does not match the tree schema.
var ErrSchema = errors.New("snapshot does not match schema")

// SnapshotSchema is the JSON schema for snapshots written in FormatJSON.
//
//go:embed schema/tree.schema.json
var SnapshotSchema []byte

// ValidateSnapshot checks a JSON document against SnapshotSchema.
func ValidateSnapshot(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(SnapshotSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
}

// DecodeSnapshot validates a JSON snapshot and rebuilds its ownership tree.
// The document "null" decodes to a nil node. Red-black invariants are not
// checked; call Node.Validate for that.
func DecodeSnapshot(data []byte) (*rbtree.Node, error) {
	err := ValidateSnapshot(data)
	if err != nil {
		return nil, err
	}

	var view *rbtree.View

	err = json.Unmarshal(data, &view)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return rbtree.FromView(view)
}
