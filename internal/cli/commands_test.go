package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lectern/internal/library"
	"github.com/roach88/lectern/internal/store"
	"github.com/roach88/lectern/internal/testutil"
)

// cliEnv runs commands against one library root with a shared
// deterministic clock and id sequence.
type cliEnv struct {
	t       *testing.T
	root    string
	backend string
	libOpts []library.Option
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:       t,
		root:    t.TempDir(),
		backend: "file",
		libOpts: []library.Option{
			library.WithClock(testutil.NewDeterministicClock()),
			library.WithIDGenerator(testutil.NewSequentialIDGenerator("id")),
		},
	}
}

// run executes one command line and returns stdout.
func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCommand(&RootOptions{LibraryOptions: e.libOpts})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--root", e.root, "--backend", e.backend))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run("", args...)
	require.NoError(e.t, err, out)
	return out
}

// data decodes the data member of a JSON response.
func data(t *testing.T, out string, target any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, target))
}

func errorCode(t *testing.T, out string) string {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

const amazingGrace = `{"title":"Amazing Grace","artist":"John Newton"}`

func TestCreateAndGet(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("create", "--type", "song", "--payload", amazingGrace, "--author", "alice", "--device", "laptop")
	assert.Equal(t, "Created song id-0001: version 1 (commit id-0002)\n", out)

	var item map[string]any
	data(t, env.mustRun("get", "id-0001", "--format", "json"), &item)
	assert.Equal(t, "Amazing Grace", item["title"])
	assert.Equal(t, "song", item["type"])
	assert.Equal(t, float64(1), item["version"])
	assert.Equal(t, "alice", item["author"])
	assert.Equal(t, "laptop", item["origin_device_id"])
	assert.Equal(t, "2026-01-04T09:00:00Z", item["created_at"])

	text := env.mustRun("get", "id-0001")
	assert.Contains(t, text, `"title": "Amazing Grace"`)
}

func TestCreateFromStdin(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(`{"reference":"John 3:16","translation":"KJV"}`, "create", "--type", "scripture", "--file", "-")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created scripture id-0001")
}

func TestCreateErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{"malformed json", []string{"--type", "song", "--payload", `{"title":`}, CodeBadInput, ExitCommandError},
		{"no payload", []string{"--type", "song"}, CodeBadInput, ExitCommandError},
		{"float", []string{"--type", "song", "--payload", `{"title":"x","tempo_bpm":72.5}`}, CodeBadInput, ExitCommandError},
		{"unknown type", []string{"--type", "hymnal", "--payload", `{"title":"x"}`}, CodeInvalid, ExitFailure},
		{"unknown field", []string{"--type", "song", "--payload", `{"title":"x","composer":"y"}`}, CodeInvalid, ExitFailure},
		{"schema violation", []string{"--type", "song", "--payload", `{"title":""}`}, CodeInvalid, ExitFailure},
		{"envelope key", []string{"--type", "song", "--payload", `{"title":"x","version":9}`}, CodeInvalid, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t)
			out, err := env.run("", append([]string{"create", "--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.Equal(t, tt.wantCode, errorCode(t, out))

			listed := env.mustRun("list")
			assert.Equal(t, "No items found.\n", listed, "nothing written")
		})
	}
}

func TestUpdate(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "--type", "song", "--payload", amazingGrace)

	out := env.mustRun("update", "id-0001", "--delta", `{"key":"G","artist":null}`, "--summary", "Transpose")
	assert.Equal(t, "Updated song id-0001: version 2 (commit id-0003)\n", out)

	var item map[string]any
	data(t, env.mustRun("get", "id-0001", "--format", "json"), &item)
	assert.Equal(t, "G", item["key"])
	assert.NotContains(t, item, "artist")
	assert.Equal(t, "id-0003", item["history_head_id"])
}

func TestUpdateExpectVersion(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "--type", "song", "--payload", amazingGrace)
	env.mustRun("update", "id-0001", "--delta", `{"key":"G"}`, "--expect-version", "1")

	out, err := env.run("", "update", "id-0001", "--delta", `{"key":"A"}`, "--expect-version", "1", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, CodeConflict, errorCode(t, out))

	var commits []map[string]any
	data(t, env.mustRun("history", "id-0001", "--format", "json"), &commits)
	assert.Len(t, commits, 2, "conflicting write appended nothing")
}

func TestUpdateMissing(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("", "update", "nope", "--delta", `{"title":"x"}`, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, CodeNotFound, errorCode(t, out))
}

func TestGetErrors(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("", "get", "missing", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, errorCode(t, out))

	out, err = env.run("", "get", "../escape", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeInvalid, errorCode(t, out))
}

func TestHistoryShowRevert(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "--type", "song", "--payload", amazingGrace, "--author", "alice")
	env.mustRun("update", "id-0001", "--delta", `{"title":"Amazing Grace (Remix)","tempo_bpm":90}`, "--author", "bob")

	text := env.mustRun("history", "id-0001")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "VERSION"))
	assert.True(t, strings.HasPrefix(lines[1], "2 "), lines[1])
	assert.Contains(t, lines[1], "bob")
	assert.Contains(t, lines[2], "Created item")
	assert.Contains(t, lines[2], " - ", "root commit has no parent")

	var v1 map[string]any
	data(t, env.mustRun("show", "id-0001", "--version", "1", "--format", "json"), &v1)
	assert.Equal(t, "Amazing Grace", v1["title"])
	assert.NotContains(t, v1, "tempo_bpm")

	out := env.mustRun("revert", "id-0001", "--version", "1")
	assert.Equal(t, "Reverted song id-0001: version 3 (commit id-0004)\n", out)

	var cur map[string]any
	data(t, env.mustRun("get", "id-0001", "--format", "json"), &cur)
	assert.Equal(t, "Amazing Grace", cur["title"])
	assert.NotContains(t, cur, "tempo_bpm")
	assert.Equal(t, v1["content_hash"], cur["content_hash"])

	var commits []map[string]any
	data(t, env.mustRun("history", "id-0001", "--format", "json"), &commits)
	require.Len(t, commits, 3)
	assert.Equal(t, "Reverted to version 1", commits[0]["change_summary"])
	assert.Nil(t, commits[2]["parent_commit_id"])

	_, err := env.run("", "show", "id-0001", "--version", "9", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestList(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "--type", "song", "--payload", amazingGrace)
	env.mustRun("create", "--type", "media", "--payload", `{"title":"Sunrise loop","uri":"file:///media/sunrise.mp4","mime_type":"video/mp4"}`)

	text := env.mustRun("list")
	assert.Contains(t, text, "ID")
	assert.Contains(t, text, "Amazing Grace")
	assert.Contains(t, text, "Sunrise loop")

	var songs []map[string]any
	data(t, env.mustRun("list", "--type", "song", "--format", "json"), &songs)
	require.Len(t, songs, 1)
	assert.Equal(t, "id-0001", songs[0]["id"])

	out, err := env.run("", "list", "--type", "hymnal", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeInvalid, errorCode(t, out))
}

func TestVerifyAndRebuild(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "--type", "song", "--payload", amazingGrace)
	env.mustRun("update", "id-0001", "--delta", `{"key":"D"}`)

	assert.Equal(t, "id-0001: ok (2 commits, version 2)\n", env.mustRun("verify"))

	dir, err := store.OpenDir(env.root, nil)
	require.NoError(t, err)
	path, err := dir.SnapshotPath("id-0001")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	out, err := env.run("", "verify", "id-0001")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "[snapshot_missing]")

	out, err = env.run("", "verify", "id-0001", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeVerifyFail, errorCode(t, out))

	assert.Equal(t, "Rebuilt song id-0001: version 2 (commit id-0003)\n", env.mustRun("rebuild", "id-0001"))
	assert.Equal(t, "id-0001: ok (2 commits, version 2)\n", env.mustRun("verify", "id-0001"))

	var reports []library.Report
	data(t, env.mustRun("verify", "--format", "json"), &reports)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].OK())
}

func TestSQLiteBackend(t *testing.T) {
	env := newCLIEnv(t)
	env.backend = "sqlite"

	env.mustRun("create", "--type", "schedule", "--payload", `{"title":"Sunday AM","service_date":"2026-01-04"}`)
	env.mustRun("update", "id-0001", "--delta", `{"notes":"Communion"}`)

	var item map[string]any
	data(t, env.mustRun("get", "id-0001", "--format", "json"), &item)
	assert.Equal(t, "Communion", item["notes"])
	assert.Equal(t, float64(2), item["version"])

	_, err := os.Stat(env.root + "/lectern.db")
	require.NoError(t, err)
	assert.Equal(t, "id-0001: ok (2 commits, version 2)\n", env.mustRun("verify", "id-0001"))
}

func TestInvalidBackendFlag(t *testing.T) {
	env := newCLIEnv(t)
	env.backend = "postgres"

	out, err := env.run("", "list", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, CodeStorage, errorCode(t, out))
}
