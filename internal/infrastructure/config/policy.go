package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// VerifierPolicy names the packages that take part in install verification.
//
//	required = ["com.android.verifier"]
//
//	[sufficient]
//	"com.example.app" = ["com.example.trusted"]
type VerifierPolicy struct {
	Required   []string            `toml:"required"`
	Sufficient map[string][]string `toml:"sufficient"`
}

// LoadVerifierPolicy reads a TOML policy file.
func LoadVerifierPolicy(path string) (*VerifierPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read verifier policy: %w", err)
	}
	return ParseVerifierPolicy(data)
}

// ParseVerifierPolicy decodes policy bytes.
func ParseVerifierPolicy(data []byte) (*VerifierPolicy, error) {
	var p VerifierPolicy
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse verifier policy: %w", err)
	}
	if p.Sufficient == nil {
		p.Sufficient = make(map[string][]string)
	}
	return &p, nil
}

// Policy resolves the verifier policy for this configuration. The policy
// file wins over PM_REQUIRED_VERIFIERS when both are set.
func (v VerificationConfig) Policy() (*VerifierPolicy, error) {
	if v.PolicyFile != "" {
		return LoadVerifierPolicy(v.PolicyFile)
	}
	return &VerifierPolicy{
		Required:   append([]string(nil), v.Required...),
		Sufficient: make(map[string][]string),
	}, nil
}
