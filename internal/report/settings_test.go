package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"old": true, "much": "longer content than the new file"}`), 0o644))

	err := WriteSettings(path, Settings{"prompt": "<b>café</b>"})

	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\n    \"prompt\": \"<b>café</b>\"\n}\n", string(got))
}

func TestWriteSettings_Nil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	require.NoError(t, WriteSettings(path, nil))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{}\n", string(got))
}
