package telegram

import "regexp"

// Solana addresses are base58: no 0, O, I, or l.
var solanaAddrRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidWalletAddress reports whether s looks like a Solana wallet address.
// Format only; ownership is not proven.
func ValidWalletAddress(s string) bool {
	return solanaAddrRe.MatchString(s)
}

func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
