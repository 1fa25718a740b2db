package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of the password using DefaultCost.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword compares a bcrypt hashed password with its possible plaintext equivalent.
func CheckPassword(hash string, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsBcrypt reports whether s looks like a bcrypt hash.
func IsBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2") && len(s) == 60
}

// IsLegacyDigest reports whether s is a 32 character hex MD5 digest
// as written by older password files.
func IsLegacyDigest(s string) bool {
	if len(s) != md5.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// IsDigest reports whether s is any stored password digest.
func IsDigest(s string) bool {
	return IsBcrypt(s) || IsLegacyDigest(s)
}

// LegacyDigest returns the hex MD5 of the password.
func LegacyDigest(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyDigest checks a password against a bcrypt hash or a legacy MD5 digest.
func VerifyDigest(digest, password string) bool {
	switch {
	case IsBcrypt(digest):
		return CheckPassword(digest, password)
	case IsLegacyDigest(digest):
		want := strings.ToLower(digest)
		return subtle.ConstantTimeCompare([]byte(want), []byte(LegacyDigest(password))) == 1
	default:
		return false
	}
}
