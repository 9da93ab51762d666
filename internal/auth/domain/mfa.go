package domain

// MFAChallenge is returned by the token endpoint when the user has MFA
// enabled and supplied no code. It is a 200 response, not an error: the
// password was correct, the client just needs to re-submit with a code.
type MFAChallenge struct {
	Detail      string `json:"detail"`
	MFARequired bool   `json:"mfa_required"` // always true
	Username    string `json:"username"`
}

// MFASetup is returned when a user initiates MFA setup. The secret is shown
// exactly once; backup codes come from regeneration, never from setup.
type MFASetup struct {
	Secret string `json:"secret"`   // base32 TOTP seed
	QRCode string `json:"qr_code"`  // base64-encoded PNG of the provisioning URI
	URI    string `json:"uri"`      // otpauth:// provisioning URI
}
