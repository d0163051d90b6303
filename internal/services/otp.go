package services

import (
	"fmt"
	"math/rand/v2"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// OTPGenerator produces 6-digit one-time passwords.
type OTPGenerator func() string

// RandomOTP draws uniformly from 100000-999999.
func RandomOTP() string {
	return fmt.Sprintf("%06d", otpMin+rand.IntN(otpMax-otpMin+1))
}
