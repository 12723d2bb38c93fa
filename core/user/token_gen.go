package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/ustawi/core"
)

var (
	resetSalt  = []byte("ustawi.core.user.password_reset")
	verifySalt = []byte("ustawi.core.user.email_verify")

	NowFunc = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// MakeResetToken generates a password reset token for a given User.
// The token is invalidated by a password change or a new login.
func MakeResetToken(usr User, conf *core.Config) (string, error) {
	return makeTokenWithTimestamp(usr, numDaysSince2001(NowFunc()), resetSalt, conf)
}

// verifyResetToken checks that a password reset token for a given User is valid.
func verifyResetToken(usr User, token string, conf *core.Config) error {
	return verifyToken(usr, token, resetSalt, conf.PasswordResetTimeoutDelta, conf)
}

// MakeVerifyToken generates an email verification token for a given User.
// The token is invalidated once the email is verified.
func MakeVerifyToken(usr User, conf *core.Config) (string, error) {
	return makeTokenWithTimestamp(usr, numDaysSince2001(NowFunc()), verifySalt, conf)
}

// verifyEmailToken checks that an email verification token for a given User is valid.
func verifyEmailToken(usr User, token string, conf *core.Config) error {
	return verifyToken(usr, token, verifySalt, conf.EmailVerifyTimeoutDelta, conf)
}

func verifyToken(usr User, token string, salt []byte, timeout time.Duration, conf *core.Config) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}
	tsB32 := parts[0]

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(tsB32)
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken, err := makeTokenWithTimestamp(usr, ts, salt, conf)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(time.Now()) - ts) > int(timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(usr User, ts int, salt []byte, conf *core.Config) (string, error) {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	sig, err := sign(hashValue(usr, ts, salt), salt, conf)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsB32, sig), nil
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val, salt []byte, conf *core.Config) (string, error) {
	key := sha256.Sum256(append(salt, conf.SecretKey...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func hashValue(usr User, ts int, salt []byte) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	if bytes.Equal(salt, verifySalt) {
		// binds the token to the address being verified and to its current state
		val.WriteString(usr.Email)
		if usr.EmailVerified.Valid {
			val.WriteString(usr.EmailVerified.Time.String())
		}
	} else {
		val.Write(usr.PasswordHash)
		if usr.LastLogin.Valid {
			val.WriteString(usr.LastLogin.Time.String())
		}
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
