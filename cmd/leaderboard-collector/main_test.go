package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/despreadlabs/leaderboard-collector/pkg/leaderboard"
)

// unsetEnv removes the credential variables for the duration of the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{envNotionToken, envNotionDatabaseID, envTriggerSecret} {
		t.Setenv(env, "")
		if err := os.Unsetenv(env); err != nil {
			t.Fatalf("could not unset %s: %v", env, err)
		}
	}
}

func TestGatherOptions(t *testing.T) {
	testCases := []struct {
		name           string
		args           []string
		env            map[string]string
		expectedConfig leaderboard.Config
		expectedErr    string
	}{
		{
			name:           "local storage with credentials from flags",
			args:           []string{"--storage=local", "--local-dir=/tmp/snapshots", "--notion-token=flag-token", "--notion-database-id=flag-db", "--trigger-secret=flag-secret"},
			expectedConfig: leaderboard.Config{NotionToken: "flag-token", NotionDatabaseID: "flag-db", TriggerSecret: "flag-secret"},
		},
		{
			name:           "credentials default to the environment",
			args:           []string{"--storage=local", "--local-dir=/tmp/snapshots"},
			env:            map[string]string{envNotionToken: "env-token", envNotionDatabaseID: "env-db", envTriggerSecret: "env-secret"},
			expectedConfig: leaderboard.Config{NotionToken: "env-token", NotionDatabaseID: "env-db", TriggerSecret: "env-secret"},
		},
		{
			name:           "flags take precedence over the environment",
			args:           []string{"--storage=local", "--local-dir=/tmp/snapshots", "--notion-token=flag-token"},
			env:            map[string]string{envNotionToken: "env-token", envNotionDatabaseID: "env-db"},
			expectedConfig: leaderboard.Config{NotionToken: "flag-token", NotionDatabaseID: "env-db"},
		},
		{
			name: "missing credentials are not a startup error",
			args: []string{"--storage=gcs", "--bucket=snapshots"},
		},
		{
			name:        "unknown storage",
			args:        []string{"--storage=ftp"},
			expectedErr: `--storage must be one of gcs, s3, minio or local, not "ftp"`,
		},
		{
			name:        "bucket storage needs a bucket",
			args:        []string{"--storage=gcs"},
			expectedErr: "--bucket is required with --storage=gcs",
		},
		{
			name:        "s3 needs a region and a bucket",
			args:        []string{"--storage=s3"},
			expectedErr: "[--s3-region is required with --storage=s3, --bucket is required with --storage=s3]",
		},
		{
			name:        "minio needs an endpoint",
			args:        []string{"--storage=minio", "--bucket=snapshots"},
			expectedErr: "--minio-endpoint is required with --storage=minio",
		},
		{
			name:        "local storage needs a directory",
			args:        []string{"--storage=local"},
			expectedErr: "--local-dir is required with --storage=local",
		},
		{
			name:        "invalid schedule",
			args:        []string{"--storage=local", "--local-dir=/tmp", "--schedule=every day"},
			expectedErr: "--schedule invalid: ",
		},
		{
			name:        "schedule and run once",
			args:        []string{"--storage=local", "--local-dir=/tmp", "--schedule=5 15 * * *", "--run-once"},
			expectedErr: "--schedule and --run-once are mutually exclusive",
		},
		{
			name:        "invalid log style",
			args:        []string{"--storage=local", "--local-dir=/tmp", "--log-style=xml"},
			expectedErr: "--log-style must be one of text or json, not xml",
		},
		{
			name:        "unknown time zone",
			args:        []string{"--storage=local", "--local-dir=/tmp", "--business-timezone=Mars/Olympus"},
			expectedErr: "--business-timezone invalid: unknown time zone Mars/Olympus",
		},
		{
			name:        "metrics API base is not configurable",
			args:        []string{"--storage=local", "--local-dir=/tmp", "--metrics-base-url=http://localhost:8080"},
			expectedErr: "failed to parse flags: flag provided but not defined: -metrics-base-url",
		},
		{
			name:        "negative rate limit",
			args:        []string{"--storage=local", "--local-dir=/tmp", "--notion-rate-limit=-1"},
			expectedErr: "--notion-rate-limit must not be negative",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			unsetEnv(t)
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			o, err := gatherOptions(flag.NewFlagSet(tc.name, flag.ContinueOnError), tc.args)
			if tc.expectedErr == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.expectedErr != "" {
				if err == nil || !strings.HasPrefix(err.Error(), tc.expectedErr) {
					t.Fatalf("expected error starting with %q, got %v", tc.expectedErr, err)
				}
				return
			}
			if diff := cmp.Diff(tc.expectedConfig, o.config()); diff != "" {
				t.Errorf("unexpected config: %s", diff)
			}
		})
	}
}

func TestGatherOptionsEnvFile(t *testing.T) {
	unsetEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	content := envNotionToken + "=file-token\n" + envNotionDatabaseID + "=file-db\n"
	if err := os.WriteFile(envFile, []byte(content), 0600); err != nil {
		t.Fatalf("could not write env file: %v", err)
	}
	t.Cleanup(func() {
		for _, env := range []string{envNotionToken, envNotionDatabaseID} {
			_ = os.Unsetenv(env)
		}
	})

	o, err := gatherOptions(flag.NewFlagSet("env-file", flag.ContinueOnError), []string{"--storage=local", "--local-dir=/tmp", "--env-file=" + envFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(leaderboard.Config{NotionToken: "file-token", NotionDatabaseID: "file-db"}, o.config()); diff != "" {
		t.Errorf("unexpected config: %s", diff)
	}
}

func TestGatherOptionsMissingEnvFile(t *testing.T) {
	unsetEnv(t)
	if _, err := gatherOptions(flag.NewFlagSet("env-file", flag.ContinueOnError), []string{"--storage=local", "--local-dir=/tmp", "--env-file=/does/not/exist"}); err == nil {
		t.Error("expected an error for a missing env file")
	}
}

func TestSecrets(t *testing.T) {
	o := &options{notionToken: "token", storageOptions: storageOptions{minioSecretKey: "minio"}}
	if diff := cmp.Diff([]string{"token", "minio"}, o.secrets()); diff != "" {
		t.Errorf("unexpected secrets: %s", diff)
	}
}
