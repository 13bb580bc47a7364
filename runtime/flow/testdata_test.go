package flow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// fixtureScenario mirrors the teacher's integration-test Scenario shape
// (name + fenced source + expectation), scaled down to a single source file,
// a single input, and a single expected return value since a compiled flow
// run has no multi-step HTTP exchange to script.
type fixtureScenario struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Input  string `yaml:"input"`
	Expect any    `yaml:"expect"`
}

// TestFlowFixtures runs every testdata/*.yaml scenario end to end: compile
// the embedded source, execute it, and compare the returned value against
// the fixture's expectation.
func TestFlowFixtures(t *testing.T) {
	paths, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths, "expected at least one fixture under testdata/")

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			raw, err := os.ReadFile(path)
			require.NoError(t, err)

			var sc fixtureScenario
			require.NoError(t, yaml.Unmarshal(raw, &sc))

			wf := compile(t, sc.Source)
			in := New(wf, Options{})
			result, err := in.Run(context.Background(), sc.Input)
			require.NoError(t, err)
			require.EqualValues(t, sc.Expect, result, "scenario %q", sc.Name)
		})
	}
}
