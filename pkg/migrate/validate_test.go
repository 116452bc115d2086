package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "balanced",
			body: "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\nSELECT 2;\n",
		},
		{
			name:    "missing down",
			body:    "-- +goose Up\nSELECT 1;\n",
			wantErr: "goose Down",
		},
		{
			name:    "sections swapped",
			body:    "-- +goose Down\nSELECT 2;\n-- +goose Up\nSELECT 1;\n",
			wantErr: "precedes",
		},
		{
			name:    "unbalanced",
			body:    "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
			wantErr: "unbalanced",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateBody(tc.body)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	for _, name := range []string{"20260101000000_a.sql", "20260101000000_b.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestCreateSQLMigrationRejectsReusedSlug(t *testing.T) {
	dir := t.TempDir()
	if _, err := CreateSQLMigration(dir, "add payout index"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "Add Payout Index"); err == nil {
		t.Fatal("expected reused slug to be rejected")
	}
	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected empty slug to be rejected")
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("20260101000000"); err != nil || v != 20260101000000 {
		t.Fatalf("unexpected parse result %d, %v", v, err)
	}
	for _, raw := range []string{"", "2026", "2026010100000x"} {
		if _, err := parseVersion(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestRunRejectsUnsupportedCommand(t *testing.T) {
	if err := Run(t.Context(), nil, DefaultDir, "reset"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported command error, got %v", err)
	}
}
