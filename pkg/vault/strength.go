package vault

// Strength rates a passphrase by length. Length is the primary factor
// (NIST SP 800-63B); composition rules are not applied.
type Strength int

const (
	StrengthWeak Strength = iota
	StrengthFair
	StrengthGood
	StrengthStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "Weak"
	case StrengthFair:
		return "Fair"
	case StrengthGood:
		return "Good"
	case StrengthStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// CheckStrength rates passphrase.
func CheckStrength(passphrase []byte) Strength {
	n := len([]rune(string(passphrase)))
	switch {
	case n >= 20:
		return StrengthStrong
	case n >= 14:
		return StrengthGood
	case n >= 8:
		return StrengthFair
	default:
		return StrengthWeak
	}
}
