package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// MarshalTrace renders a trace as golden file content: a header line
// naming the scenario, then one canonical JSON object per event.
func MarshalTrace(scenarioName string, trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	header, err := MarshalCanonical(map[string]any{"scenario": scenarioName})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for _, ev := range trace {
		line, err := MarshalCanonical(eventMap(ev))
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func eventMap(ev TraceEvent) map[string]any {
	m := map[string]any{
		"seq":  ev.Seq,
		"step": ev.Step,
		"type": ev.Type,
	}
	if ev.Name != "" {
		m["name"] = ev.Name
	}
	if ev.Table != "" {
		m["table"] = ev.Table
	}
	if ev.SQL != "" {
		m["sql"] = ev.SQL
	}
	if ev.Detail != nil {
		m["detail"] = ev.Detail
	}
	return m
}

// RunWithGolden runs a scenario, fails the test on expectation errors and
// compares the trace with testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	for _, e := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, e)
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace with a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
