package repository

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestBuildRecordWhere(t *testing.T) {
	from, to := 2010, 2015

	tests := []struct {
		name      string
		filter    RecordFilter
		wantWhere string
		wantArgs  []interface{}
	}{
		{name: "no filters", filter: RecordFilter{}, wantWhere: "", wantArgs: nil},
		{
			name:      "region only",
			filter:    RecordFilter{Regions: []string{"Punjab"}},
			wantWhere: " WHERE LOWER(region) = ANY($1)",
			wantArgs:  []interface{}{pq.Array([]string{"punjab"})},
		},
		{
			name:      "several regions and crops",
			filter:    RecordFilter{Regions: []string{"Punjab", " Goa "}, Crops: []string{"Wheat", "RICE"}},
			wantWhere: " WHERE LOWER(region) = ANY($1) AND LOWER(crop) = ANY($2)",
			wantArgs:  []interface{}{pq.Array([]string{"punjab", "goa"}), pq.Array([]string{"wheat", "rice"})},
		},
		{
			name:      "all filters numbered in order",
			filter:    RecordFilter{Regions: []string{"Punjab"}, Crops: []string{"Wheat"}, FromYear: &from, ToYear: &to},
			wantWhere: " WHERE LOWER(region) = ANY($1) AND LOWER(crop) = ANY($2) AND year >= $3 AND year <= $4",
			wantArgs:  []interface{}{pq.Array([]string{"punjab"}), pq.Array([]string{"wheat"}), 2010, 2015},
		},
		{
			name:      "year range only",
			filter:    RecordFilter{ToYear: &to},
			wantWhere: " WHERE year <= $1",
			wantArgs:  []interface{}{2015},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildRecordWhere(tt.filter)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Resource: "region_summary", ID: "Goa"}
	assert.Equal(t, "region_summary not found: Goa", err.Error())
	assert.False(t, err.IsTransient())
}
