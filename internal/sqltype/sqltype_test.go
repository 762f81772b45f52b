package sqltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_NumericTypes(t *testing.T) {
	numericTypes := []string{
		"smallint", "integer", "bigint",
		"numeric", "numeric(12,2)", "NUMERIC",
		"real", "double precision",
		"INT4", "INT8", "FLOAT8", "money",
	}

	for _, sqlType := range numericTypes {
		t.Run(sqlType, func(t *testing.T) {
			assert.Equal(t, Numeric, Classify(sqlType))
			assert.True(t, IsNumeric(sqlType))
			assert.Equal(t, "numeric", Classify(sqlType).String())
		})
	}
}

func TestClassify_TemporalTypes(t *testing.T) {
	temporalTypes := []string{
		"date", "DATE",
		"timestamp without time zone",
		"timestamp with time zone",
		"time without time zone",
		"TIMESTAMPTZ",
	}

	for _, sqlType := range temporalTypes {
		t.Run(sqlType, func(t *testing.T) {
			assert.Equal(t, Temporal, Classify(sqlType))
			assert.True(t, IsTemporal(sqlType))
		})
	}
}

func TestClassify_TextTypes(t *testing.T) {
	for _, sqlType := range []string{"character varying", "varchar(255)", "text", "BPCHAR", "character(10)"} {
		t.Run(sqlType, func(t *testing.T) {
			assert.Equal(t, Text, Classify(sqlType))
			assert.False(t, IsNumeric(sqlType))
		})
	}
}

func TestClassify_BooleanAndUnknown(t *testing.T) {
	assert.Equal(t, Boolean, Classify("boolean"))
	assert.Equal(t, Boolean, Classify("BOOL"))
	assert.Equal(t, Other, Classify("jsonb"))
	assert.Equal(t, Other, Classify("uuid"))
	assert.Equal(t, Other, Classify(""))
	assert.Equal(t, "other", Classify("bytea").String())
}
