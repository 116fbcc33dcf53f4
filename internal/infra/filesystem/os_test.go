package filesystem

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOS_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewOS()

	jsonPath := filepath.Join(dir, "nested", "data.json")
	require.NoError(t, fs.WriteJSON(jsonPath, map[string]int{"a": 1}))

	var decoded map[string]int
	require.NoError(t, fs.ReadJSON(jsonPath, &decoded))
	require.Equal(t, map[string]int{"a": 1}, decoded)

	yamlPath := filepath.Join(dir, "report.yaml")
	require.NoError(t, fs.WriteYAML(yamlPath, map[string]string{"status": "completed"}))
	data, err := fs.ReadFile(yamlPath)
	require.NoError(t, err)
	require.Equal(t, "status: completed\n", string(data))

	_, err = fs.ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
