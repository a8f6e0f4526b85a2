package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestKindsCommandListsCatalog(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"kinds"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	if err := Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	text := out.String()
	for _, want := range []string{"general_health_check", "comprehensive_score", "ATS Compatibility Verification", "anthropic"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestPurgeUserRequiresUserFlag(t *testing.T) {
	rootCmd.SetArgs([]string{"purge-user"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := Execute(); err != errMissingUser {
		t.Fatalf("err = %v", err)
	}
}
