package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_BcryptHasher(t *testing.T) {
	t.Parallel()

	h := BcryptHasher{}

	t.Run("hash password", func(t *testing.T) {
		got, err := h.Hash("password")
		require.NoError(t, err)

		require.Len(t, got, 60, "bcrypt length is 60 letters as far as i know")
		require.Equal(t, "$2a$", got[:4], "bcrypt has should have prefix '$2a$'")
	})

	t.Run("compare password ok", func(t *testing.T) {
		hash, err := h.Hash("password")
		require.NoError(t, err)

		err = h.Compare(hash, "password")

		require.NoError(t, err)
	})

	t.Run("fail compare if wrong password", func(t *testing.T) {
		hash, err := h.Hash("password")
		require.NoError(t, err)

		err = h.Compare(hash, "wrong")

		require.Error(t, err)
	})

	t.Run("long password still works", func(t *testing.T) {
		// Raw bcrypt truncates at 72 bytes; pre-hashing keeps the whole
		// password significant
		long := make([]byte, 100)
		for i := range long {
			long[i] = 'a'
		}
		tweaked := append([]byte{}, long...)
		tweaked[90] = 'b'

		hash, err := h.Hash(string(long))
		require.NoError(t, err)

		require.NoError(t, h.Compare(hash, string(long)))
		require.Error(t, h.Compare(hash, string(tweaked)), "change after byte 72 should still be detected")
	})
}
