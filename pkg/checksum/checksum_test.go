package checksum_test

import (
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		version checksum.Version
		equal   bool
	}{
		{name: "v9 collapses whitespace", a: "SELECT  1\n\tFROM x", b: "SELECT 1 FROM x", version: checksum.V9, equal: true},
		{name: "v9 normalises line endings", a: "a\r\nb", b: "a\nb", version: checksum.V9, equal: true},
		{name: "v8 normalises line endings", a: "a\r\nb\r", b: "a\nb\n", version: checksum.V8, equal: true},
		{name: "v8 keeps inner whitespace", a: "a  b", b: "a b", version: checksum.V8, equal: false},
		{name: "v7 hashes raw bytes", a: "a\r\nb", b: "a\nb", version: checksum.V7, equal: false},
		{name: "content change", a: "CREATE TABLE a", b: "CREATE TABLE b", version: checksum.V9, equal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := checksum.Compute(tt.a, tt.version)
			b := checksum.Compute(tt.b, tt.version)
			require.Equal(t, tt.equal, a.Equal(b))
			require.Equal(t, tt.version, a.Version())
		})
	}
}

func TestComputeKnownValue(t *testing.T) {
	// md5("") is a well known digest
	sum := checksum.Compute("", checksum.V7)
	require.Equal(t, "7:d41d8cd98f00b204e9800998ecf8427e", sum.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		version checksum.Version
		hash    string
	}{
		{input: "9:ABCDEF", version: checksum.V9, hash: "abcdef"},
		{input: "8:0123", version: checksum.V8, hash: "0123"},
		{input: "d41d8cd98f00b204e9800998ecf8427e", version: checksum.V7, hash: "d41d8cd98f00b204e9800998ecf8427e"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sum, err := checksum.Parse(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.version, sum.Version())
			require.Equal(t, tt.hash, sum.Hash())
		})
	}

	sum, err := checksum.Parse("  ")
	require.NoError(t, err)
	require.True(t, sum.IsZero())
	require.Empty(t, sum.String())
}

func TestRoundTripString(t *testing.T) {
	sum := checksum.Compute("CREATE TABLE person (id INT)", checksum.Latest)
	parsed := checksum.MustParse(sum.String())
	require.True(t, sum.Equal(parsed))
}

func TestParseVersion(t *testing.T) {
	v, err := checksum.ParseVersion(8)
	require.NoError(t, err)
	require.Equal(t, checksum.V8, v)

	_, err = checksum.ParseVersion(3)
	require.Error(t, err)
}

func TestIsWildcard(t *testing.T) {
	for _, s := range []string{"any", "ALL", "*", "1:any", "1:all", "1:*", " any "} {
		require.True(t, checksum.IsWildcard(s), s)
	}

	for _, s := range []string{"", "9:abc", "anything", "2:any"} {
		require.False(t, checksum.IsWildcard(s), s)
	}
}

func TestComputeDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.String().Draw(t, "data")
		v := rapid.SampledFrom([]checksum.Version{checksum.V7, checksum.V8, checksum.V9}).Draw(t, "version")

		if !checksum.Compute(data, v).Equal(checksum.Compute(data, v)) {
			t.Fatalf("checksum of %q not deterministic for version %d", data, v)
		}
	})
}
