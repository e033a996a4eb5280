package loader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
)

var suitesDir = filepath.Join("testdata", "suites")

func TestFinderShortName(t *testing.T) {
	f, err := loader.NewFinder(suitesDir, loader.DefaultConfigurationName)
	require.NoError(t, err)

	want := []string{filepath.Join(suitesDir, "Test_TC_OO_1_1.yaml")}
	for _, name := range []string{"Test_TC_OO_1_1.yaml", "Test_TC_OO_1_1", "OO_1_1"} {
		paths, err := f.Find(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, paths, name)
	}
}

func TestFinderNestedDirectory(t *testing.T) {
	f, err := loader.NewFinder(suitesDir, "")
	require.NoError(t, err)

	paths, err := f.Find("UT_1_1")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(suitesDir, "certification", "Test_TC_UT_1_1.yaml")}, paths)
}

func TestFinderCollections(t *testing.T) {
	f, err := loader.NewFinder(suitesDir, loader.DefaultConfigurationName)
	require.NoError(t, err)
	assert.Equal(t, []string{"OnOff", "UnitTesting"}, f.Collections())

	paths, err := f.Find("UnitTesting")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(suitesDir, "certification", "Test_TC_UT_1_1.yaml")}, paths)

	paths, err = f.Find(loader.AllTests)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(suitesDir, "Test_TC_OO_1_1.yaml"),
		filepath.Join(suitesDir, "certification", "Test_TC_UT_1_1.yaml"),
	}, paths)
}

func TestFinderConfigurationPath(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(config, []byte(`{"collection": ["Mine"], "Mine": ["OO_1_1"]}`), 0o644))

	f, err := loader.NewFinder(suitesDir, config)
	require.NoError(t, err)

	paths, err := f.Find("Mine")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(suitesDir, "Test_TC_OO_1_1.yaml")}, paths)
}

func TestFinderInvalidConfiguration(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(config, []byte(`{"collection": `), 0o644))

	_, err := loader.NewFinder(suitesDir, config)
	var le *loader.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, config, le.File)
}

func TestFinderUnknownName(t *testing.T) {
	f, err := loader.NewFinder(suitesDir, "")
	require.NoError(t, err)

	paths, err := f.Find("does_not_exist")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFinderMissingDirectory(t *testing.T) {
	f, err := loader.NewFinder(filepath.Join(t.TempDir(), "missing"), "")
	require.NoError(t, err)

	_, err = f.Find("anything")
	require.Error(t, err)
}
