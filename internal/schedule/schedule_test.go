package schedule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/apsweep/internal/models"
)

func TestDefault_ExactOrder(t *testing.T) {
	want := []models.RunSpec{
		{Mode: 0, Concurrency: 1}, {Mode: 0, Concurrency: 2}, {Mode: 0, Concurrency: 4}, {Mode: 0, Concurrency: 8},
		{Mode: 1, Concurrency: 1}, {Mode: 1, Concurrency: 2}, {Mode: 1, Concurrency: 4}, {Mode: 1, Concurrency: 8},
		{Mode: 2, Concurrency: 1},
	}
	if diff := cmp.Diff(want, Default()); diff != "" {
		t.Errorf("default schedule mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, Validate(Default()))
}

func TestDefault_ReturnsCopy(t *testing.T) {
	a := Default()
	a[0].Mode = 2
	assert.Equal(t, 0, Default()[0].Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		specs   []models.RunSpec
		wantErr string
	}{
		{"empty", nil, "empty"},
		{"bad mode", []models.RunSpec{{Mode: 3, Concurrency: 1}}, "mode 3"},
		{"bad concurrency", []models.RunSpec{{Mode: 0, Concurrency: 3}}, "concurrency 3"},
		{"duplicate", []models.RunSpec{{Mode: 0, Concurrency: 1}, {Mode: 1, Concurrency: 1}, {Mode: 0, Concurrency: 1}}, "duplicates entry 0"},
		{"ok subset", []models.RunSpec{{Mode: 2, Concurrency: 8}, {Mode: 0, Concurrency: 1}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.specs)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.lua")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadScript(t *testing.T) {
	path := writeScript(t, `
function schedule()
  local out = {}
  for _, j in ipairs({1, 4}) do
    table.insert(out, {mode = 1, concurrency = j})
  end
  table.insert(out, {mode = 2, concurrency = 1})
  return out
end
`)
	specs, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, []models.RunSpec{{Mode: 1, Concurrency: 1}, {Mode: 1, Concurrency: 4}, {Mode: 2, Concurrency: 1}}, specs)
}

func TestLoadScript_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"no function", `x = 1`, "must define"},
		{"not a table", `function schedule() return 5 end`, "must return a table"},
		{"missing field", `function schedule() return {{mode=0}} end`, "concurrency"},
		{"fractional", `function schedule() return {{mode=0, concurrency=1.5}} end`, "integer"},
		{"invalid values", `function schedule() return {{mode=9, concurrency=1}} end`, "mode 9"},
		{"sandboxed", `function schedule() return dofile("/etc/passwd") end`, "schedule() failed"},
		{"syntax", `function schedule(`, "failed to load"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScript(writeScript(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DefaultWhenNoScript(t *testing.T) {
	specs, err := Load("")
	require.NoError(t, err)
	assert.Len(t, specs, 9)
}
