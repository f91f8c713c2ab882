package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPostCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	db, path := testutil.SetupFileDB(t)
	viper.Set("database.path", path)
	viper.Set("metrics.textfile", filepath.Join(t.TempDir(), "ledger.prom"))
	t.Cleanup(viper.Reset)

	account := db.MustCreateAccount("ACC-1", "100.00")
	db.MustCreateOperationType("DEPOSIT", model.SignPlus)
	run := db.MustCreateRun()
	db.Stage(run).Account("ACC-1").Amount("50.00").Code("DEPOSIT").Save()
	bad := db.Stage(run).Account("ACC-1").Amount("5.00").External(77).Save()

	out, err := executeCommand(t, "post", "--no-progress")
	require.NoError(t, err)

	assert.Contains(t, out, "Processed:  1")
	assert.Contains(t, out, "Errors:     1")
	assert.Contains(t, out, "UnmappedExternalType")

	assert.True(t, db.MustGetAccount(account.ID).AvailableBalance.Equal(decimal.RequireFromString("150.00")))
	assert.Equal(t, model.ImportError, db.MustGetStaging(bad.ID).ImportStatus)
	assert.Equal(t, model.RunCompleted, db.MustGetRun(run.ID).Status)
	assert.FileExists(t, viper.GetString("metrics.textfile"))
}
