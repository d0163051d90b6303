package handlers

import (
	"errors"
	"net/http"

	"github.com/bookfinder/apiserver/internal/services"
)

type errorMapping struct {
	err     error
	status  int
	message string
}

// serviceErrors maps workflow failures to responses. First match wins.
var serviceErrors = []errorMapping{
	{services.ErrDuplicateAccount, http.StatusBadRequest, "User already exists"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{services.ErrAccountNotFound, http.StatusBadRequest, "Account not found"},
	{services.ErrInvalidOtp, http.StatusBadRequest, "Invalid OTP"},
	{services.ErrOtpExpired, http.StatusBadRequest, "OTP has expired"},
	{services.ErrDeliveryFailure, http.StatusBadGateway, "Failed to send OTP email"},
}

// statusFor reports the response for err, or ok=false for unexpected errors.
func statusFor(err error) (status int, body MessageResponse, ok bool) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, MessageResponse{Message: "Validation failed", Details: verr.Fields}, true
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.status, MessageResponse{Message: m.message}, true
		}
	}
	return http.StatusInternalServerError, MessageResponse{Message: "Internal server error"}, false
}
