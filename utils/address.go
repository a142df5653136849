package utils

import "regexp"

// base58 alphabet, 32 to 44 characters: the textual form of a Solana public key
var solanaAddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidSolanaAddress reports whether addr has Solana address syntax.
// It does not check that the key decodes to 32 bytes.
func ValidSolanaAddress(addr string) bool {
	return solanaAddressRe.MatchString(addr)
}
