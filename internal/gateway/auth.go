package gateway

import (
	"net/http"

	"github.com/pquerna/otp/totp"
)

// OTPHeader carries the TOTP code on control requests.
const OTPHeader = "X-Control-OTP"

// RequireTOTP rejects requests without a valid code for secret. An empty
// secret disables the check.
func RequireTOTP(secret string, next http.HandlerFunc) http.HandlerFunc {
	if secret == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.Header.Get(OTPHeader)
		if code == "" || !totp.Validate(code, secret) {
			writeError(w, http.StatusUnauthorized, "invalid or missing "+OTPHeader)
			return
		}
		next(w, r)
	}
}
