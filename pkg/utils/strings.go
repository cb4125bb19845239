package utils

// MaskSecret keeps the first few characters of a token for log lines
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
