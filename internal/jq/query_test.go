package jq

import (
	"context"
	"reflect"
	"testing"
)

func TestQuery(t *testing.T) {
	snapshot := map[string]any{
		"run_id":        "a1b2c3d4",
		"workflow_name": "code-task",
		"result": map[string]any{
			"summary":       "done",
			"files_changed": []any{"main.go", "main_test.go"},
		},
	}

	tests := []struct {
		name       string
		expression string
		want       any
		wantErr    bool
	}{
		{
			name:       "empty expression returns data as-is",
			expression: "",
			want:       snapshot,
		},
		{
			name:       "field extraction",
			expression: ".workflow_name",
			want:       "code-task",
		},
		{
			name:       "nested path",
			expression: ".result.summary",
			want:       "done",
		},
		{
			name:       "multiple results become a slice",
			expression: ".result.files_changed[]",
			want:       []any{"main.go", "main_test.go"},
		},
		{
			name:       "missing field is null",
			expression: ".nope",
			want:       nil,
		},
		{
			name:       "invalid expression",
			expression: ".[",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Query(context.Background(), tt.expression, snapshot)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Query() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Query() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryTimeout(t *testing.T) {
	// until(false; …) evaluates forever without yielding a result; the
	// deadline has to cut it off.
	_, err := Query(context.Background(), "until(false; .+1)", 0)
	if err == nil {
		t.Fatal("expected timeout error for non-terminating expression")
	}
}
