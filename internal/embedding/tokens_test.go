package embedding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokensKeepsTurkishLettersAndDigits(t *testing.T) {
	require.Equal(t, []string{"seed", "1", "ne", "demek"}, Tokens("Seed -1 ne demek?"))
	require.Equal(t, []string{"kırmızı", "araba"}, Tokens("Kırmızı araba"))
	require.Equal(t, []string{"don’t", "stop"}, Tokens("Don’t STOP"))
}

func TestTokenSetAndIsZero(t *testing.T) {
	require.Len(t, TokenSet("a a b"), 2)
	require.True(t, IsZero([]float64{0, 0}))
	require.True(t, IsZero(nil))
	require.False(t, IsZero([]float64{0, 1e-12}))
}
