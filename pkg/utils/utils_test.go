package utils

import "testing"

func TestEnvInt(t *testing.T) {
	t.Setenv("ROOMLINK_TEST_INT", "42")
	if got := EnvInt("ROOMLINK_TEST_INT", 7); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}

	t.Setenv("ROOMLINK_TEST_INT", "nope")
	if got := EnvInt("ROOMLINK_TEST_INT", 7); got != 7 {
		t.Errorf("Expected fallback 7, got %d", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("ROOMLINK_TEST_BOOL", "yes")
	if !EnvBool("ROOMLINK_TEST_BOOL", false) {
		t.Error("Expected yes to parse as true")
	}
	if EnvBool("ROOMLINK_TEST_BOOL_UNSET", false) {
		t.Error("Expected default for unset variable")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("short"); got != "***" {
		t.Errorf("Expected short secret fully masked, got %s", got)
	}
	if got := MaskSecret("abcdefghijkl"); got != "abcdefgh***" {
		t.Errorf("Unexpected mask: %s", got)
	}
}
