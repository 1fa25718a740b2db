package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordDigests(t *testing.T) {
	t.Run("bcrypt", func(t *testing.T) {
		hash, err := HashPassword("s3cret")
		require.NoError(t, err)
		assert.True(t, IsBcrypt(hash), "хеш должен распознаваться как bcrypt")
		assert.True(t, IsDigest(hash))
		assert.True(t, VerifyDigest(hash, "s3cret"))
		assert.False(t, VerifyDigest(hash, "wrong"))
	})

	t.Run("legacy md5", func(t *testing.T) {
		digest := LegacyDigest("password")
		assert.Equal(t, "5f4dcc3b5aa765d61d8327deb882cf99", digest)
		assert.True(t, IsLegacyDigest(digest))
		assert.True(t, VerifyDigest(digest, "password"))
		assert.True(t, VerifyDigest("5F4DCC3B5AA765D61D8327DEB882CF99", "password"), "регистр hex не важен")
		assert.False(t, VerifyDigest(digest, "Password"))
	})

	t.Run("plain text is not a digest", func(t *testing.T) {
		assert.False(t, IsDigest("hunter2"))
		assert.False(t, IsDigest("*"))
		assert.False(t, VerifyDigest("hunter2", "hunter2"))
	})
}
