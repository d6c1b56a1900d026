package config

// MaskSecret masks a credential for safe logging: shows the first and
// last 4 characters for strings longer than 8, "***" for shorter
// non-empty strings, and "<not set>" for the empty string.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
