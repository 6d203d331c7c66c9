package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mdouchement/aletsch/internal/control"
	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/aletsch/internal/gateway/gatewaytest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "success", code: 0},
		{name: "not found", err: errors.Wrap(database.ErrNotFound, "binding"), code: 2},
		{name: "ambiguous job", err: control.ErrAmbiguousJob, code: 2},
		{name: "unavailable", err: gatewaytest.Unavailable("upload"), code: 1},
		{name: "internal", err: errors.New("boom"), code: 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.code, exitCode(test.err))
		})
	}
}

func TestBatch(t *testing.T) {
	var buf bytes.Buffer
	b := &batch{w: &buf}

	b.run("a.txt", func() (string, error) { return "uploaded", nil })
	assert.NoError(t, b.err())

	b.run("b.txt", func() (string, error) { return "", errors.Wrap(database.ErrConflict, "b.txt") })
	err := b.err()
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 failed")

	b.run("c.txt", func() (string, error) { return "", gatewaytest.Unavailable("upload") })
	assert.Equal(t, 1, exitCode(b.err()), "the worst failure wins")

	assert.Contains(t, buf.String(), "a.txt: uploaded\n")
	assert.Contains(t, buf.String(), "b.txt: b.txt: already exists\n")
}

func TestJobArgs(t *testing.T) {
	c := jobCmd()

	for _, name := range []string{"output", "remove", "status"} {
		sub, _, err := c.Find([]string{name})
		require.NoError(t, err)
		assert.NoError(t, sub.Args(sub, []string{}), name)
		assert.NoError(t, sub.Args(sub, []string{"job-0"}), name)
	}

	sub, _, err := c.Find([]string{"output"})
	require.NoError(t, err)
	assert.NoError(t, sub.Args(sub, []string{"job-001", "vault1"}))
	assert.Error(t, sub.Args(sub, []string{"job-001", "vault1", "extra"}))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestSave(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "out.json")

	err := save(filename, &gateway.JobOutput{Inventory: &gateway.Inventory{VaultARN: "arn"}})
	require.NoError(t, err)

	payload, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"VaultARN": "arn"`)

	err = save(filename, &gateway.JobOutput{Body: io.NopCloser(failingReader{})})
	assert.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	err = save(filepath.Join(t.TempDir(), "missing", "out.bin"), &gateway.JobOutput{Body: io.NopCloser(failingReader{})})
	assert.Error(t, err)
}
