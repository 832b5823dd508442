package account

import "errors"

var (
	// ErrUserNotFound indicates no account exists for the email, or an
	// account has not created the record an operation needs (its passkey).
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials indicates a wrong email/password pair or an
	// account that may not use the operation yet (unverified).
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailAlreadyExists indicates registration with a taken email.
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrInvalidOTP indicates a missing or non-matching one-time code.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrOTPExpired indicates a matching one-time code past its expiry.
	ErrOTPExpired = errors.New("otp expired")
	// ErrMissingDetails indicates a required input was absent or malformed.
	ErrMissingDetails = errors.New("missing details")
	// ErrWeakPasskey indicates a passkey candidate failed the strength policy.
	ErrWeakPasskey = errors.New("passkey does not meet policy")
	// ErrPasskeyAlreadyExists indicates the account already has a passkey.
	ErrPasskeyAlreadyExists = errors.New("passkey already exists")
	// ErrInvalidPasskey indicates a passkey candidate did not match.
	ErrInvalidPasskey = errors.New("invalid passkey")
	// ErrDispatchFailure indicates the notifier could not send a message.
	ErrDispatchFailure = errors.New("email dispatch failed")
)
