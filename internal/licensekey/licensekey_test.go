package licensekey

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env    string
		prefix string
	}{
		{EnvLive, "lic_live_"},
		{EnvTest, "lic_test_"},
		{"staging", "lic_live_"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			key, err := Generate(tt.env)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if !strings.HasPrefix(key, tt.prefix) {
				t.Errorf("key %q should start with %q", key, tt.prefix)
			}
			if !IsGenerated(key) {
				t.Errorf("generated key %q does not match its own format", key)
			}
		})
	}
}

func TestGenerate_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := Generate(EnvTest)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = true
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	key := "lic_test_" + strings.Repeat("ab", 16)
	parsed, err := Parse(key)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Env != EnvTest || len(parsed.Secret) != SecretLen {
		t.Errorf("unexpected parse: %+v", parsed)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	invalid := []string{
		"",
		"ABC",
		"lic_prod_" + strings.Repeat("ab", 16),
		"lic_live_" + strings.Repeat("ab", 15),
		"lic_live_" + strings.Repeat("AB", 16),
		"pk_live_7a9x3k_" + strings.Repeat("ab", 16),
	}
	for _, key := range invalid {
		if _, err := Parse(key); !errors.Is(err, ErrInvalidKeyFormat) {
			t.Errorf("Parse(%q) = %v, want ErrInvalidKeyFormat", key, err)
		}
	}
}
