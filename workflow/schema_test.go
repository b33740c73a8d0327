// ABOUTME: Tests for schema marker parsing, the sniffer snippet, and the resolver's
// ABOUTME: first-non-empty-wins precedence across channels.
package workflow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseSchemaMarkerLocked(t *testing.T) {
	logs := "loading data\nDATA_SCHEMA_LOCKED:['age', 'bmi', 'charges']\ndone\n"
	got := ParseSchemaMarker(logs)
	want := []string{"age", "bmi", "charges"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseSchemaMarkerAbsentOrError(t *testing.T) {
	if got := ParseSchemaMarker("all quiet"); got != nil {
		t.Errorf("no marker: got %v", got)
	}
	if got := ParseSchemaMarker("DATA_SCHEMA_ERROR: No DataFrame found\n"); got != nil {
		t.Errorf("error marker: got %v", got)
	}
	if got := ParseSchemaMarker("DATA_SCHEMA_LOCKED:[]\n"); got != nil {
		t.Errorf("empty list: got %v", got)
	}
}

func TestParseSchemaMarkerUsesLastMarker(t *testing.T) {
	logs := "DATA_SCHEMA_LOCKED:['old']\nretrying\nDATA_SCHEMA_LOCKED:['age', 'bmi']\n"
	got := ParseSchemaMarker(logs)
	if !reflect.DeepEqual(got, []string{"age", "bmi"}) {
		t.Errorf("got %v", got)
	}
}

func TestParseSchemaMarkerDoubleQuotes(t *testing.T) {
	got := ParseSchemaMarker(`DATA_SCHEMA_LOCKED:["age", "bmi"]`)
	if !reflect.DeepEqual(got, []string{"age", "bmi"}) {
		t.Errorf("got %v", got)
	}
}

func TestWithSchemaSnifferAppendsProbe(t *testing.T) {
	out := WithSchemaSniffer("df = load()")
	if !strings.HasPrefix(out, "df = load()") {
		t.Error("original code not preserved")
	}
	if !strings.Contains(out, SchemaLockedMarker) || !strings.Contains(out, SchemaErrorMarker) {
		t.Error("probe does not emit the expected markers")
	}
}

func TestSchemaPlaceholder(t *testing.T) {
	for _, cols := range [][]string{nil, {}, {"not available"}, {"N/A"}, {" none "}, {""}} {
		if !schemaPlaceholder(cols) {
			t.Errorf("%v should be a placeholder", cols)
		}
	}
	for _, cols := range [][]string{{"age"}, {"age", "bmi"}, {"none", "age"}} {
		if schemaPlaceholder(cols) {
			t.Errorf("%v should not be a placeholder", cols)
		}
	}
}

type fixedRelay struct {
	cols []string
	err  error
}

func (r fixedRelay) FetchSchema(ctx context.Context, workflowID string) ([]string, error) {
	return r.cols, r.err
}

func TestResolveSchemaPrefersExistingCapture(t *testing.T) {
	rec := NewRecord("goal", "")
	rec.Source.CapturedSchema = []string{"age", "bmi"}

	got := ResolveSchema(context.Background(), rec, "DATA_SCHEMA_LOCKED:['other']", fixedRelay{cols: []string{"x"}}, time.Second)
	if !reflect.DeepEqual(got, []string{"age", "bmi"}) {
		t.Errorf("existing capture overwritten: %v", got)
	}
}

func TestResolveSchemaFromLogs(t *testing.T) {
	rec := NewRecord("goal", "")
	got := ResolveSchema(context.Background(), rec, "DATA_SCHEMA_LOCKED:['age', 'bmi']", fixedRelay{cols: []string{"x"}}, time.Second)
	if !reflect.DeepEqual(got, []string{"age", "bmi"}) {
		t.Errorf("got %v", got)
	}
	if !reflect.DeepEqual(rec.Source.CapturedSchema, []string{"age", "bmi"}) {
		t.Errorf("record not updated: %v", rec.Source.CapturedSchema)
	}
}

func TestResolveSchemaFallsBackToRelay(t *testing.T) {
	rec := NewRecord("goal", "")
	got := ResolveSchema(context.Background(), rec, "no markers here", fixedRelay{cols: []string{"age"}}, time.Second)
	if !reflect.DeepEqual(got, []string{"age"}) {
		t.Errorf("got %v", got)
	}
}

func TestResolveSchemaRelayFailuresLeaveSchemaEmpty(t *testing.T) {
	rec := NewRecord("goal", "")
	if got := ResolveSchema(context.Background(), rec, "", fixedRelay{err: errors.New("timeout")}, time.Millisecond); got != nil {
		t.Errorf("got %v", got)
	}
	if got := ResolveSchema(context.Background(), rec, "", fixedRelay{cols: []string{"not available"}}, time.Millisecond); got != nil {
		t.Errorf("placeholder accepted: %v", got)
	}
	if got := ResolveSchema(context.Background(), rec, "", nil, time.Millisecond); got != nil {
		t.Errorf("nil relay: %v", got)
	}
	if rec.Source.CapturedSchema != nil {
		t.Errorf("record mutated: %v", rec.Source.CapturedSchema)
	}
}
