package access

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already registered")
	ErrBadPassword          = errors.New("invalid password")
	ErrAttemptLimitExceeded = errors.New("too many failed attempts")
	ErrNotVerified          = errors.New("session is not verified")
	ErrUnknownGroup         = errors.New("unknown group")
	ErrUnknownPerm          = errors.New("unknown permission")
	ErrOperatorNotAllowed   = errors.New("operator not allowed in user permissions")
	ErrMalformedUsersFile   = errors.New("malformed users file")
)
