package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoot(t *testing.T) {
	root := Root("/srv/pm")

	assert.Equal(t, filepath.FromSlash("/srv/pm/app/com.example.app"), root.Code("com.example.app"))
	assert.Equal(t, filepath.FromSlash("/srv/pm/data/user/10/com.example.app"), root.Data("com.example.app", 10))
	assert.Equal(t, filepath.FromSlash("/srv/pm/data/user_de/10/com.example.app"), root.DeviceData("com.example.app", 10))
	assert.Equal(t, []string{root.Data("p", 0), root.DeviceData("p", 0)}, root.DataDirs("p", 0))

	assert.True(t, root.Contains(root.Code("p")))
	assert.False(t, root.Contains("/srv/other"))
	assert.False(t, root.Contains("/srv/pm/../etc"))
}

func TestSplitFile(t *testing.T) {
	assert.Equal(t, "base.apk", SplitFile(""))
	assert.Equal(t, "base.apk", SplitFile("base"))
	assert.Equal(t, "split_config.hdpi.apk", SplitFile("config.hdpi"))
}

func TestValidateSplit(t *testing.T) {
	assert.NoError(t, ValidateSplit("config.hdpi"))
	assert.NoError(t, ValidateSplit("feature_one-2"))

	for _, bad := range []string{"", "..", ".hidden", "x/../../escaped", `a\b`, "a\x00b", "a b", "über"} {
		assert.Error(t, ValidateSplit(bad), bad)
	}
}

func TestValidateFile(t *testing.T) {
	assert.NoError(t, ValidateFile(SplitFile("config.hdpi")))
	assert.Error(t, ValidateFile(SplitFile("x/../../../../escaped")))
}

func TestValidatePackage(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"com.example.app", false},
		{"", true},
		{"..", true},
		{"com/evil", true},
		{"/abs", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackage(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
