package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/habitsync/internal/model"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
seed:
  innerfaces:
    - { id: a, name: A, initialScore: 1 }
flow:
  - invoke: edit
    args: { innerface: a, delta: 0.5 }
assertions:
  - type: score
    kind: innerfaces
    id: a
    value: 1.5
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Len(t, scenario.Flow, 1)
	assert.Equal(t, OpManualEdit, scenario.Flow[0].Invoke)
	assert.Equal(t, 0.5, scenario.Flow[0].Args["delta"])
	assert.Equal(t, model.KindInnerfaces, scenario.Assertions[0].Kind)
	assert.Equal(t, model.EntityID("a"), scenario.Assertions[0].ID)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing name",
			content: `
description: d
flow: [{ invoke: clear_all }]
assertions: [{ type: journal_count }]
`,
			want: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
flow: [{ invoke: clear_all }]
assertions: [{ type: journal_count }]
`,
			want: "description is required",
		},
		{
			name: "empty flow",
			content: `
name: n
description: d
flow: []
assertions: [{ type: journal_count }]
`,
			want: "flow list is required",
		},
		{
			name: "no assertions",
			content: `
name: n
description: d
flow: [{ invoke: clear_all }]
`,
			want: "assertions list is required",
		},
		{
			name: "typo in field",
			content: `
name: n
description: d
flow: [{ invoke: clear_all }]
assertion: [{ type: journal_count }]
`,
			want: "failed to parse YAML",
		},
		{
			name: "unknown operation",
			content: `
name: n
description: d
flow: [{ invoke: teleport }]
assertions: [{ type: journal_count }]
`,
			want: `unknown operation "teleport"`,
		},
		{
			name: "unknown outcome",
			content: `
name: n
description: d
flow: [{ invoke: clear_all, expect: { outcome: maybe } }]
assertions: [{ type: journal_count }]
`,
			want: `unknown outcome "maybe"`,
		},
		{
			name: "score on protocols",
			content: `
name: n
description: d
flow: [{ invoke: clear_all }]
assertions: [{ type: score, kind: protocols, id: p }]
`,
			want: "score kind must be innerfaces or states",
		},
		{
			name: "score without id",
			content: `
name: n
description: d
flow: [{ invoke: clear_all }]
assertions: [{ type: score, kind: states }]
`,
			want: "id is required for score",
		},
		{
			name: "trace_order without actions",
			content: `
name: n
description: d
flow: [{ invoke: clear_all }]
assertions: [{ type: trace_order }]
`,
			want: "actions list is required",
		},
		{
			name: "unknown change kind",
			content: `
name: n
description: d
flow: [{ invoke: clear_all }]
assertions: [{ type: queued, kinds: [explode] }]
`,
			want: `unknown change kind "explode"`,
		},
		{
			name: "unknown assertion",
			content: `
name: n
description: d
flow: [{ invoke: clear_all }]
assertions: [{ type: vibes }]
`,
			want: `unknown assertion type "vibes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
