package version

import "testing"

func TestCurrentReportsBuildMetadata(t *testing.T) {
	info := Current()
	if info.Version == "" {
		t.Fatal("Version should never be empty")
	}
	if info.GoVersion == "" {
		t.Fatal("GoVersion should be populated by the build-info resolver")
	}
}

func TestStringFormatsVersionCommitAndDate(t *testing.T) {
	info := Info{Version: "1.2.3", Commit: "abc123", BuildDate: "2026-01-01"}
	want := "1.2.3 (abc123, 2026-01-01)"
	if got := info.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
