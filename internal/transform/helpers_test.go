package transform

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/attributes"
	"github.com/stretchr/testify/require"
)

type fakeAttributes struct {
	defs     map[string]pimsync.AttributeDefinition
	options  map[string]map[string]pimsync.AttributeOption
	mapper   *attributes.Mapper
	excluded map[string]bool
	lookups  int
}

func newFakeAttributes(defs ...pimsync.AttributeDefinition) *fakeAttributes {
	f := &fakeAttributes{
		defs:     make(map[string]pimsync.AttributeDefinition),
		options:  make(map[string]map[string]pimsync.AttributeOption),
		mapper:   attributes.NewMapper(nil, nil),
		excluded: make(map[string]bool),
	}
	for _, d := range defs {
		f.defs[d.Code] = d
	}
	return f
}

func (f *fakeAttributes) Resolve(_ context.Context, code string) (pimsync.AttributeDefinition, error) {
	def, ok := f.defs[code]
	if !ok {
		return pimsync.AttributeDefinition{}, pimsync.NewRetryExhaustedError("GET "+code, 5, nil)
	}
	return def, nil
}

func (f *fakeAttributes) Option(_ context.Context, attrCode, optionCode string) (pimsync.AttributeOption, bool, error) {
	f.lookups++
	opt, ok := f.options[attrCode][optionCode]
	return opt, ok, nil
}

func (f *fakeAttributes) Mapper() *attributes.Mapper { return f.mapper }

func (f *fakeAttributes) Included(code string) bool { return !f.excluded[code] }

func (f *fakeAttributes) addOption(attrCode string, opt pimsync.AttributeOption) {
	if f.options[attrCode] == nil {
		f.options[attrCode] = make(map[string]pimsync.AttributeOption)
	}
	f.options[attrCode][opt.Code] = opt
}

func def(code string, typ pimsync.AttributeType) pimsync.AttributeDefinition {
	return pimsync.AttributeDefinition{Code: code, Type: typ}
}

// decodeValues parses values the way they arrive from the PIM.
func decodeValues(t *testing.T, raw string) []pimsync.AttributeValue {
	t.Helper()
	var values []pimsync.AttributeValue
	require.NoError(t, json.Unmarshal([]byte(raw), &values))
	return values
}

func ptr(s string) *string { return &s }
