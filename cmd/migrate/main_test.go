package main

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/migrations"
)

type fakeMigrator struct {
	upErr   error
	steps   []int
	forced  int
	version uint
	verErr  error
}

func (f *fakeMigrator) Up() error { return f.upErr }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.forced = v
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, false, f.verErr }

func TestRunCommands(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange, version: 3}

	msg, err := run(m, nil)
	require.NoError(t, err)
	assert.Equal(t, "migrations complete", msg)

	_, err = run(m, []string{"down"})
	require.NoError(t, err)
	assert.Equal(t, []int{-1}, m.steps)

	msg, err = run(m, []string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version 3 (dirty=false)", msg)

	_, err = run(m, []string{"force", "2"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.forced)

	_, err = run(m, []string{"force"})
	assert.Error(t, err)
	_, err = run(m, []string{"force", "x"})
	assert.Error(t, err)
	_, err = run(m, []string{"sideways"})
	assert.Error(t, err)
}

func TestRunSurfacesFailures(t *testing.T) {
	_, err := run(&fakeMigrator{upErr: errors.New("boom")}, []string{"up"})
	assert.Error(t, err)

	msg, err := run(&fakeMigrator{verErr: migrate.ErrNilVersion}, []string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "no migrations applied", msg)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations.FS, "*.down.sql")
	require.NoError(t, err)
	assert.Len(t, ups, 3)
	assert.Len(t, downs, len(ups))
}
