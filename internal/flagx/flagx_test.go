package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "separate flag and value",
			args:         []string{"-a", "http://localhost:8080", "-x", "junk"},
			allowedFlags: []string{"-a"},
			want:         []string{"-a", "http://localhost:8080"},
		},
		{
			name:         "flag=value form",
			args:         []string{"--config=conf.json", "--other=1"},
			allowedFlags: []string{"--config"},
			want:         []string{"--config=conf.json"},
		},
		{
			name:         "value that looks like a flag is not consumed",
			args:         []string{"-a", "-b"},
			allowedFlags: []string{"-a", "-b"},
			want:         []string{"-a", "-b"},
		},
		{
			name:         "nothing allowed",
			args:         []string{"-a", "1", "-b", "2"},
			allowedFlags: nil,
			want:         []string{},
		},
		{
			name:         "empty args",
			args:         nil,
			allowedFlags: []string{"-a"},
			want:         []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterArgs(tc.args, tc.allowedFlags)
			assert.Equal(t, tc.want, got)
		})
	}
}
