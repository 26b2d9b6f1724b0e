package circuits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		in   string
		want Metadata
		err  bool
	}{
		{in: "auth=keys/auth.zkey", want: Metadata{Id: "auth", Path: "keys/auth.zkey"}},
		{in: " auth = /abs/auth.zkey ", want: Metadata{Id: "auth", Path: "/abs/auth.zkey"}},
		{in: "keys/auth.zkey", want: Metadata{Id: "keys/auth.zkey", Path: "keys/auth.zkey"}},
		{in: "auth=", err: true},
		{in: "=keys/auth.zkey", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMetadata(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, m)
		})
	}
}

func TestParseAllRejectsDuplicates(t *testing.T) {
	_, err := ParseAll([]string{"a=1.zkey", "b=2.zkey", "a=3.zkey"})
	require.Error(t, err)

	all, err := ParseAll([]string{"a=1.zkey", "b=2.zkey"})
	require.NoError(t, err)
	require.Len(t, all, 2)
}
