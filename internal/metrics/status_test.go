package metrics

import (
	"reflect"
	"testing"
)

func TestFlattenStatusBuckets(t *testing.T) {
	tests := []struct {
		name    string
		buckets map[string]map[string]int
		want    []StatusBucket
	}{
		{
			name:    "nil buckets",
			buckets: nil,
			want:    nil,
		},
		{
			name:    "empty buckets",
			buckets: map[string]map[string]int{},
			want:    nil,
		},
		{
			name: "single bucket",
			buckets: map[string]map[string]int{
				"api": {"200": 10},
			},
			want: []StatusBucket{
				{Source: "api", Code: "200", Count: 10},
			},
		},
		{
			name: "multiple buckets sorted by count desc",
			buckets: map[string]map[string]int{
				"api": {
					"200": 10,
					"500": 5,
				},
				"login": {
					"401": 20,
				},
			},
			want: []StatusBucket{
				{Source: "login", Code: "401", Count: 20},
				{Source: "api", Code: "200", Count: 10},
				{Source: "api", Code: "500", Count: 5},
			},
		},
		{
			name: "tie breaking by source then code",
			buckets: map[string]map[string]int{
				"api": {
					"200": 10,
					"404": 10,
				},
				"login": {
					"401": 10,
				},
			},
			want: []StatusBucket{
				{Source: "api", Code: "200", Count: 10},
				{Source: "api", Code: "404", Count: 10},
				{Source: "login", Code: "401", Count: 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenStatusBuckets(tt.buckets)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenStatusBuckets() = %v, want %v", got, tt.want)
			}
		})
	}
}
