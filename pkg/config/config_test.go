package config

import (
	"os"
	"path/filepath"
	"testing"

	"ivfplay/pkg/log"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := NewConfig("/home/ivf/configs/ivfdump.yaml", nil)
		require.NoError(t, err)

		expected := Config{
			LogDB:     "/home/ivf/configs/logs.db",
			LogLevel:  "info",
			OutputDir: "/home/ivf/configs/output",
			Level:     log.LevelInfo,
			ConfigDir: "/home/ivf/configs",
		}
		require.Equal(t, expected, *c)
	})
	t.Run("values", func(t *testing.T) {
		input, err := yaml.Marshal(Config{
			LogDB:     "/var/log/ivf.db",
			LogLevel:  "debug",
			OutputDir: "/tmp/out",
			PNGEvery:  30,
			Raw:       true,
			Realtime:  true,
			VPXLib:    "/usr/lib/libvpx.so.7",
		})
		require.NoError(t, err)

		c, err := NewConfig("/a/b.yaml", input)
		require.NoError(t, err)

		expected := Config{
			LogDB:     "/var/log/ivf.db",
			LogLevel:  "debug",
			OutputDir: "/tmp/out",
			PNGEvery:  30,
			Raw:       true,
			Realtime:  true,
			VPXLib:    "/usr/lib/libvpx.so.7",
			Level:     log.LevelDebug,
			ConfigDir: "/a",
		}
		require.Equal(t, expected, *c)
	})
	cases := []struct {
		name     string
		input    string
		expected error
	}{
		{"relativeLogDB", "logDB: logs.db", ErrPathNotAbsolute},
		{"relativeOutputDir", "outputDir: out", ErrPathNotAbsolute},
		{"relativeVPXLib", "vpxLib: libvpx.so", ErrPathNotAbsolute},
		{"unknownLevel", "logLevel: verbose", log.ErrUnknownLevel},
		{"negativePNGEvery", "pngEvery: -1", ErrInvalidValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig("/a/b.yaml", []byte(tc.input))
			require.ErrorIs(t, err, tc.expected)
		})
	}
	t.Run("unknownField", func(t *testing.T) {
		_, err := NewConfig("/a/b.yaml", []byte("nope: 1"))
		require.Error(t, err)
	})
}

func TestReadConfig(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ivfdump.yaml")
		require.NoError(t, os.WriteFile(path, []byte("pngEvery: 5\n"), 0o600))

		c, err := ReadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 5, c.PNGEvery)
		require.Equal(t, filepath.Join(dir, "logs.db"), c.LogDB)
	})
	t.Run("missing", func(t *testing.T) {
		dir := t.TempDir()
		c, err := ReadConfig(filepath.Join(dir, "none.yaml"))
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "output"), c.OutputDir)
	})
}

func TestPrepareOutputDir(t *testing.T) {
	c := Config{OutputDir: filepath.Join(t.TempDir(), "a", "b")}
	require.NoError(t, c.PrepareOutputDir())

	info, err := os.Stat(c.OutputDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
