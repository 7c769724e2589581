package receipt

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

// UnitKind tags the variant held by a RawUnit
type UnitKind string

const (
	UnitText       UnitKind = "text"
	UnitRecord     UnitKind = "record"
	UnitRecordList UnitKind = "record_list"
	UnitUnparsed   UnitKind = "unparsed"
)

// RawUnit is an extractor result before normalization. Exactly one payload is
// set, selected by Kind: Text for text and unparsed units, Record or Records otherwise.
type RawUnit struct {
	Kind    UnitKind
	Text    string
	Record  map[string]any
	Records []map[string]any
}

// TextUnit wraps free text
func TextUnit(text string) RawUnit {
	return RawUnit{Kind: UnitText, Text: text}
}

// RecordUnit wraps one loosely typed mapping
func RecordUnit(m map[string]any) RawUnit {
	return RawUnit{Kind: UnitRecord, Record: m}
}

// RecordListUnit wraps several mappings in emitted order
func RecordListUnit(ms []map[string]any) RawUnit {
	return RawUnit{Kind: UnitRecordList, Records: ms}
}

// UnparsedUnit keeps a response that could not be parsed
func UnparsedUnit(text string) RawUnit {
	return RawUnit{Kind: UnitUnparsed, Text: text}
}

// receiptShape accepts one receipt object or a list of them. Field contents
// are deliberately loose; the normalizer copes with the variations.
const receiptShape = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"definitions": {
		"receipt": {"type": "object"}
	},
	"oneOf": [
		{"$ref": "#/definitions/receipt"},
		{"type": "array", "items": {"$ref": "#/definitions/receipt"}}
	]
}`

var receiptShapeSchema = jsonschema.MustCompileString("receipt-shape.json", receiptShape)

// parseVisionResponse turns a vision model response into a Record or
// RecordList unit. When that fails the response comes back as an Unparsed
// unit alongside an error wrapping scanning.ErrUnparseable.
func parseVisionResponse(text string) (RawUnit, error) {
	v, err := scanning.ParseJSON(text)
	if err != nil {
		return UnparsedUnit(text), err
	}
	if err := receiptShapeSchema.Validate(v); err != nil {
		return UnparsedUnit(text), fmt.Errorf("response has the wrong shape: %w: %w", scanning.ErrUnparseable, err)
	}
	switch val := v.(type) {
	case map[string]any:
		return RecordUnit(val), nil
	case []any:
		records := make([]map[string]any, 0, len(val))
		for _, el := range val {
			records = append(records, el.(map[string]any))
		}
		return RecordListUnit(records), nil
	}
	return UnparsedUnit(text), fmt.Errorf("unexpected response type %T: %w", v, scanning.ErrUnparseable)
}
