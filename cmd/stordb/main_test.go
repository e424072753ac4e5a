package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrwmiller/stordb/pkg/store"
	"github.com/vrwmiller/stordb/pkg/vault"
)

const testPassphrase = "correct horse battery staple"

var sessionPattern = regexp.MustCompile(`\(session ([0-9a-f-]{36})\)`)

type env struct {
	dir   string
	db    string
	log   string
	vault string
}

// setupEnv points every stordb path into a fresh temporary directory.
func setupEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:   dir,
		db:    filepath.Join(dir, "stordb.sqlite3"),
		log:   filepath.Join(dir, "stordb.log"),
		vault: filepath.Join(dir, "vault.ansible"),
	}
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("STORDB_DB_PATH", e.db)
	t.Setenv("STORDB_LOG_FILE", e.log)
	t.Setenv("STORDB_VAULT_PATH", e.vault)
	t.Setenv("VAULT_PASSWORD", testPassphrase)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return e
}

// resetFlags restores every flag to its default so commands do not leak
// state between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, "", args...)
	require.NoError(t, err, "stordb %v: %s", args, stderr)
	return out
}

func status(t *testing.T, out string) string {
	t.Helper()
	var s struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &s), out)
	return s.Status
}

func records(t *testing.T, out string) []store.Record {
	t.Helper()
	var recs []store.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs), out)
	return recs
}

func seed(t *testing.T) {
	t.Helper()
	mustRun(t, "init")
	mustRun(t, "add", "aa:bb:cc:dd:ee:01", "printer", "alice", "2nd floor", "--secret", "pr1nterKey")
	mustRun(t, "add", "aa:bb:cc:dd:ee:02", "switch", "bob")
	mustRun(t, "add", "aa:bb:cc:dd:ee:03", "camera", "alice", "--type", "wpa", "--secret", "cam3raKey")
}

func TestInitAddLookup(t *testing.T) {
	setupEnv(t)

	assert.Equal(t, "Database initialized.", status(t, mustRun(t, "init")))
	assert.Equal(t, "Database initialized.", status(t, mustRun(t, "init")), "init is idempotent")

	out := mustRun(t, "add", "aa:bb:cc:dd:ee:01", "printer", "alice", "2nd floor", "--secret", "pr1nterKey")
	var added struct {
		Status string `json:"status"`
		ID     int64  `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "Added device printer.", added.Status)
	assert.Equal(t, int64(1), added.ID)

	out = mustRun(t, "lookup", "--mac", "aa:bb:cc:dd:ee:01")
	recs := records(t, out)
	require.Len(t, recs, 1)
	assert.Equal(t, "printer", recs[0].DeviceName)
	assert.Equal(t, "2nd floor", recs[0].Notes)
	assert.Equal(t, "mac", recs[0].SecretType)
	assert.Equal(t, "********", recs[0].SecretValue)
	assert.NotContains(t, out, "pr1nterKey")

	out = mustRun(t, "lookup", "--mac", "aa:bb:cc:dd:ee:01", "--reveal")
	assert.Equal(t, "pr1nterKey", records(t, out)[0].SecretValue)

	assert.Equal(t, "Not found.", status(t, mustRun(t, "lookup", "--mac", "ff:ff:ff:ff:ff:ff")))
}

func TestAddSecretFromStdin(t *testing.T) {
	setupEnv(t)
	mustRun(t, "init")

	_, stderr, err := runCLI(t, "s3cretFromPipe\n", "add", "aa:bb:cc:dd:ee:09", "ap", "carol", "--secret-stdin")
	require.NoError(t, err, stderr)

	recs := records(t, mustRun(t, "lookup", "--device", "ap", "--reveal"))
	require.Len(t, recs, 1)
	assert.Equal(t, "s3cretFromPipe", recs[0].SecretValue)
}

func TestAddValidation(t *testing.T) {
	setupEnv(t)
	mustRun(t, "init")

	_, stderr, err := runCLI(t, "", "add", "", "printer", "alice")
	require.Error(t, err)
	var ve *store.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "mac_address", ve.Field)
	assert.Contains(t, stderr, "Error:")

	_, _, err = runCLI(t, "", "add", "aa:bb", "printer")
	assert.Error(t, err, "too few arguments")
}

func TestCommandsWithoutInitReportStorageError(t *testing.T) {
	setupEnv(t)

	_, stderr, err := runCLI(t, "", "lookup", "--owner", "alice")
	require.Error(t, err)
	assert.True(t, store.IsStorage(err))
	assert.Contains(t, stderr, "Error:")
}

func TestLookupMergesAndDedups(t *testing.T) {
	setupEnv(t)
	seed(t)

	recs := records(t, mustRun(t, "lookup", "--owner", "alice", "--device", "printer", "--mac", "aa:bb:cc:dd:ee:01"))
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0].ID)
	assert.Equal(t, int64(3), recs[1].ID)

	_, _, err := runCLI(t, "", "lookup")
	assert.Error(t, err)
}

func TestLookupField(t *testing.T) {
	setupEnv(t)
	seed(t)

	recs := records(t, mustRun(t, "lookup-field", "secret_type", "wpa"))
	require.Len(t, recs, 1)
	assert.Equal(t, "camera", recs[0].DeviceName)

	assert.Equal(t, "Not found.", status(t, mustRun(t, "lookup-field", "owner", "nobody")))

	_, _, err := runCLI(t, "", "lookup-field", "owner; DROP TABLE secrets", "x")
	require.Error(t, err)
	assert.True(t, store.IsValidation(err))
}

func TestUpdate(t *testing.T) {
	setupEnv(t)
	seed(t)

	out := mustRun(t, "update", "2", "owner=carol", "notes=rack 4")
	assert.Equal(t, "Updated device 2: notes -> rack 4, owner -> carol", status(t, out))

	recs := records(t, mustRun(t, "lookup-field", "id", "2"))
	require.Len(t, recs, 1)
	assert.Equal(t, "carol", recs[0].Owner)
	assert.Equal(t, "rack 4", recs[0].Notes)

	out = mustRun(t, "update", "2", "secret_value=n3wSecret")
	assert.NotContains(t, out, "n3wSecret")
	assert.Contains(t, status(t, out), "secret_value -> [REDACTED]")

	_, _, err := runCLI(t, "", "update", "2", "colour=red")
	assert.True(t, store.IsValidation(err))

	_, _, err = runCLI(t, "", "update", "2", "id=9")
	assert.True(t, store.IsValidation(err))

	_, _, err = runCLI(t, "", "update", "two", "owner=x")
	assert.Error(t, err)

	// Missing ids are a silent no-op.
	assert.Equal(t, "Updated device 99: owner -> x", status(t, mustRun(t, "update", "99", "owner=x")))
}

func TestDelete(t *testing.T) {
	setupEnv(t)
	seed(t)

	assert.Equal(t, "Deleted device with ID 1.", status(t, mustRun(t, "delete", "1")))
	assert.Equal(t, "Not found.", status(t, mustRun(t, "lookup", "--mac", "aa:bb:cc:dd:ee:01")))
	assert.Equal(t, "Deleted device with ID 1.", status(t, mustRun(t, "delete", "1")))
}

func TestExportImport(t *testing.T) {
	e := setupEnv(t)
	seed(t)
	exported := filepath.Join(e.dir, "export.json")

	out, stderr, err := runCLI(t, "", "export", exported)
	require.NoError(t, err)
	assert.Equal(t, "Exported 3 records to "+exported+".", status(t, out))
	assert.Contains(t, stderr, "cleartext")

	info, err := os.Stat(exported)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pr1nterKey")
	assert.Contains(t, string(data), `"id": 1`)

	// import appends.
	out = mustRun(t, "import", exported)
	assert.Equal(t, "Imported 3 of 3 records from "+exported+".", status(t, out))
	recs := records(t, mustRun(t, "lookup", "--owner", "alice"))
	assert.Len(t, recs, 4)

	// import-db replaces.
	out = mustRun(t, "import-db", exported)
	assert.Equal(t, "Imported 3 of 3 records from "+exported+".", status(t, out))
	recs = records(t, mustRun(t, "lookup", "--owner", "alice", "--reveal"))
	require.Len(t, recs, 2)
	assert.Equal(t, "pr1nterKey", recs[0].SecretValue)
	assert.Greater(t, recs[0].ID, int64(6), "ids are never reused")
}

func TestImportRejectsInvalidFile(t *testing.T) {
	e := setupEnv(t)
	seed(t)
	bad := filepath.Join(e.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"mac_address": "x", "device_name": "y"}]`), 0600))

	_, stderr, err := runCLI(t, "", "import-db", bad)
	require.Error(t, err)
	assert.True(t, store.IsValidation(err))
	assert.Contains(t, stderr, "record 0 missing required fields: owner")

	// The store was not cleared.
	recs := records(t, mustRun(t, "lookup", "--owner", "alice"))
	assert.Len(t, recs, 2)

	_, _, err = runCLI(t, "", "import", bad)
	assert.True(t, store.IsValidation(err))
}

func TestImportReportsRejectedRecords(t *testing.T) {
	e := setupEnv(t)
	mustRun(t, "init")
	file := filepath.Join(e.dir, "partial.json")
	require.NoError(t, os.WriteFile(file, []byte(`[
  {"mac_address": "aa:01", "device_name": "one", "owner": "alice"},
  {"mac_address": "", "device_name": "two", "owner": "alice"}
]`), 0600))

	out, stderr, err := runCLI(t, "", "import", file)
	require.NoError(t, err)
	assert.Equal(t, "Imported 1 of 2 records from "+file+".", status(t, out))
	assert.Contains(t, stderr, "Could not import record 1 (device_name=two, owner=alice)")
}

func TestImportFromStdin(t *testing.T) {
	setupEnv(t)
	mustRun(t, "init")

	out, _, err := runCLI(t, `[
  {"mac_address": "aa:01", "device_name": "one", "owner": "carol", "secret_value": "stdinKey1"},
  {"mac_address": "aa:02", "device_name": "two", "owner": "carol"}
]`, "import", "-")
	require.NoError(t, err)
	assert.Equal(t, "Imported 2 of 2 records from standard input.", status(t, out))

	recs := records(t, mustRun(t, "lookup", "--owner", "carol", "--reveal"))
	require.Len(t, recs, 2)
	assert.Equal(t, "stdinKey1", recs[0].SecretValue)

	_, _, err = runCLI(t, "not json", "import", "-")
	assert.True(t, store.IsValidation(err))
}

func TestBackupRestore(t *testing.T) {
	e := setupEnv(t)
	seed(t)
	dest := filepath.Join(e.dir, "copy.sqlite3")

	assert.Equal(t, "Database backed up to "+dest+".", status(t, mustRun(t, "backup", dest)))

	mustRun(t, "delete", "1")
	mustRun(t, "delete", "2")

	out := mustRun(t, "restore", dest)
	assert.Equal(t, "Database restored from "+dest+" to "+e.db+".", status(t, out))
	recs := records(t, mustRun(t, "lookup", "--owner", "bob"))
	assert.Len(t, recs, 1)

	out = mustRun(t, "backup")
	assert.Contains(t, status(t, out), e.db+".backup_")

	_, _, err := runCLI(t, "", "restore", filepath.Join(e.dir, "missing"))
	assert.Error(t, err)
}

func TestVaultRoundTrip(t *testing.T) {
	for _, cipher := range []string{"ansible", "sealed"} {
		t.Run(cipher, func(t *testing.T) {
			e := setupEnv(t)
			seed(t)

			out := mustRun(t, "vault", "export", "--cipher", cipher)
			assert.Equal(t, "Exported and encrypted 3 records to "+e.vault+".", status(t, out))

			data, err := os.ReadFile(e.vault)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "pr1nterKey")
			if cipher == "ansible" {
				assert.True(t, strings.HasPrefix(string(data), "$ANSIBLE_VAULT;1.1;AES256\n"))
			}

			mustRun(t, "update", "1", "owner=mallory")
			mustRun(t, "add", "aa:bb:cc:dd:ee:04", "extra", "dave")

			out = mustRun(t, "vault", "import", "--cipher", cipher)
			assert.Equal(t, "Decrypted and imported 3 of 3 records from "+e.vault+".", status(t, out))

			recs := records(t, mustRun(t, "lookup", "--owner", "alice", "--reveal"))
			require.Len(t, recs, 2)
			assert.Equal(t, "pr1nterKey", recs[0].SecretValue)
			assert.Equal(t, "Not found.", status(t, mustRun(t, "lookup", "--device", "extra")))
		})
	}
}

func TestVaultWrongPassphrase(t *testing.T) {
	setupEnv(t)
	seed(t)
	mustRun(t, "vault", "export")

	t.Setenv("VAULT_PASSWORD", "not the passphrase")
	_, _, err := runCLI(t, "", "vault", "import")
	require.Error(t, err)
	var ve *vault.VaultError
	assert.True(t, errors.As(err, &ve))

	// Nothing was replaced.
	assert.Len(t, records(t, mustRun(t, "lookup", "--owner", "alice")), 2)
}

func writeTool(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools need a POSIX shell")
	}
	path := filepath.Join(dir, "ansible-vault")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0700))
	return path
}

func TestVaultToolCipher(t *testing.T) {
	e := setupEnv(t)
	seed(t)
	t.Setenv("STORDB_VAULT_TOOL", writeTool(t, e.dir, `cat > /dev/null
case "$1" in
encrypt) cp "$2" "$4" ;;
view) cat "$2" ;;
esac
`))

	mustRun(t, "vault", "export", "--cipher", "tool")
	mustRun(t, "delete", "2")
	out := mustRun(t, "vault", "import", "--cipher", "tool")
	assert.Equal(t, "Decrypted and imported 3 of 3 records from "+e.vault+".", status(t, out))
	assert.Len(t, records(t, mustRun(t, "lookup", "--owner", "bob")), 1)
}

func TestVaultToolFailureExitsCleanly(t *testing.T) {
	e := setupEnv(t)
	seed(t)
	t.Setenv("STORDB_VAULT_TOOL", writeTool(t, e.dir, "cat > /dev/null\necho 'ERROR! boom' >&2\nexit 1\n"))
	t.Setenv("STORDB_VAULT_CIPHER", "tool")

	out, stderr, err := runCLI(t, "", "vault", "export")
	require.NoError(t, err)
	assert.Empty(t, out)
	m := sessionPattern.FindStringSubmatch(stderr)
	require.NotNil(t, m, stderr)
	assert.Contains(t, stderr, "Error: Vault encryption failed. See log for details")
	assert.NoFileExists(t, e.vault)

	require.NoError(t, os.WriteFile(e.vault, []byte("junk"), 0600))
	_, stderr, err = runCLI(t, "", "vault", "import")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Error: Vault decryption failed. See log for details")
	assert.Len(t, records(t, mustRun(t, "lookup", "--owner", "alice")), 2)

	logData, err := os.ReadFile(e.log)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "VAULT ERROR")
	assert.Contains(t, string(logData), "ERROR! boom")
	assert.Contains(t, string(logData), m[1], "the printed session identifies the log entries")
}

func TestAuditLogRedactsSecrets(t *testing.T) {
	e := setupEnv(t)
	seed(t)
	mustRun(t, "update", "1", "secret_value=upd4tedKey")
	mustRun(t, "vault", "export")

	data, err := os.ReadFile(e.log)
	require.NoError(t, err)
	log := string(data)

	assert.Contains(t, log, "DB TRANSACTION: add_secret")
	assert.Contains(t, log, "UI ACTION: cli_start")
	assert.Contains(t, log, "[REDACTED]")
	for _, secret := range []string{"pr1nterKey", "cam3raKey", "upd4tedKey", testPassphrase, "aa:bb:cc:dd:ee:01"} {
		assert.NotContains(t, log, secret)
	}
}

func TestConfigCommands(t *testing.T) {
	e := setupEnv(t)
	path := filepath.Join(e.dir, "conf", "stordb.yaml")

	out := mustRun(t, "config", "show")
	assert.Contains(t, out, "db_path: "+e.db)
	assert.Contains(t, out, "cipher: ansible")

	assert.Equal(t, "Wrote configuration to "+path+".", status(t, mustRun(t, "config", "init", "--path", path)))
	assert.FileExists(t, path)

	_, _, err := runCLI(t, "", "config", "init", "--path", path)
	assert.Error(t, err, "refuses to overwrite")
	mustRun(t, "config", "init", "--path", path, "--force")

	// A config file moves the database when no env override is set.
	other := filepath.Join(e.dir, "other.sqlite3")
	require.NoError(t, os.WriteFile(path, []byte("db_path: "+other+"\n"), 0600))
	os.Unsetenv("STORDB_DB_PATH")
	mustRun(t, "--config", path, "init")
	assert.FileExists(t, other)

	// --db beats everything.
	flagDB := filepath.Join(e.dir, "flag.sqlite3")
	mustRun(t, "--config", path, "--db", flagDB, "init")
	assert.FileExists(t, flagDB)
}

func TestCompletion(t *testing.T) {
	out := mustRun(t, "completion", "bash")
	assert.Contains(t, out, "stordb")

	got, _ := completeLookupField(nil, nil, "se")
	assert.Equal(t, []string{"secret_type", "secret_value"}, got)

	got, _ = completeAssignments(nil, []string{"3"}, "")
	assert.NotContains(t, got, "id=")
	assert.Contains(t, got, "owner=")

	got, _ = completeAssignments(nil, nil, "")
	assert.Empty(t, got)

	got, _ = completeCipher(nil, nil, "s")
	assert.Equal(t, []string{"sealed"}, got)
}
