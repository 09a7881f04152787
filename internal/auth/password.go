// Package auth: password hashing.
//
// bcrypt salts every hash and embeds salt and cost in its output, so the
// stored string is all Verify needs:
//
//	$2a$12$<22-char salt><31-char hash>
//
// bcrypt only looks at the first 72 bytes of its input, and x/crypto refuses
// longer input outright. Passwords are therefore cut to 72 bytes on a rune
// boundary before hashing AND before comparing. Both paths must use the same
// rule or long passwords could never be verified again.
package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// defaultCost takes roughly 250ms on a modern server.
	defaultCost = 12

	// MinPasswordLength is counted in characters, not bytes.
	MinPasswordLength = 8

	// MaxPasswordBytes is bcrypt's input ceiling.
	MaxPasswordBytes = 72
)

// ErrPasswordTooShort is returned by Hash for passwords under MinPasswordLength.
var ErrPasswordTooShort = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)

// ErrMalformedHash means the stored hash could not be parsed. It points at a
// corrupted record, never at a wrong password.
var ErrMalformedHash = errors.New("auth: malformed password hash")

// PasswordService provides bcrypt hashing and verification.
// The cost is a field so tests can run at bcrypt's minimum.
type PasswordService struct {
	cost int

	// dummyHash is compared against when a login names an unknown account,
	// so that path costs the same as a wrong password.
	dummyHash []byte
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return newPasswordServiceWithCost(defaultCost)
}

// NewPasswordServiceWithCost creates a PasswordService with a configured cost.
// Values outside bcrypt's range fall back to the default.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultCost
	}
	return newPasswordServiceWithCost(cost)
}

// NewPasswordServiceForTest creates a PasswordService with the given (low)
// cost. Use it in tests in other packages; cost 4 is far too weak for production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return newPasswordServiceWithCost(cost)
}

func newPasswordServiceWithCost(cost int) *PasswordService {
	p := &PasswordService{cost: cost}
	// A failure here only loses the timing equalisation, not correctness.
	if h, err := bcrypt.GenerateFromPassword([]byte("timing-equaliser-not-a-password"), cost); err == nil {
		p.dummyHash = h
	}
	return p
}

// TruncatePassword returns the longest prefix of plaintext that fits in
// MaxPasswordBytes without splitting a UTF-8 sequence.
func TruncatePassword(plaintext string) string {
	if len(plaintext) <= MaxPasswordBytes {
		return plaintext
	}
	cut := MaxPasswordBytes
	// Step back to the start of the rune that straddles the limit.
	for cut > 0 && !utf8.RuneStart(plaintext[cut]) {
		cut--
	}
	return plaintext[:cut]
}

// Hash hashes plaintext with bcrypt after applying TruncatePassword.
//
// Returns ErrPasswordTooShort for passwords under MinPasswordLength characters.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(TruncatePassword(plaintext)), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored hash.
//
// A wrong password is (false, nil). An error is returned only when the stored
// hash itself is unusable, which wraps ErrMalformedHash.
// bcrypt.CompareHashAndPassword compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(TruncatePassword(plaintext)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrMalformedHash, err)
	}
}

// CompareDummy burns the same CPU as a real Verify and always reports false.
func (p *PasswordService) CompareDummy(plaintext string) {
	if p.dummyHash == nil {
		return
	}
	_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(TruncatePassword(plaintext)))
}
