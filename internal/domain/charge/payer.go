package charge

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	placeholderFirstName = "Cliente"
	placeholderLastName  = "Silva"
)

// splitName splits a full name into first and last name. The processor
// requires both, so missing parts are replaced with placeholders.
func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return placeholderFirstName, placeholderLastName
	case 1:
		return fields[0], placeholderLastName
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

// payerEmail returns email, or a placeholder derived from the order id when
// email is not an address.
func payerEmail(email, orderID string) string {
	email = strings.TrimSpace(email)
	if strings.Contains(email, "@") {
		return email
	}
	return fmt.Sprintf("comprador+%s@yshpics.com.br", orderID)
}

// TaxIDSource supplies the payer tax id attached to every charge.
type TaxIDSource interface {
	TaxID() TaxID
}

// FabricatedCPF produces random CPF numbers with valid check digits.
//
// WORKAROUND: the processor's PIX flow refuses payers without a CPF and the
// platform does not collect one from buyers. The number identifies nobody;
// it only passes the processor's format validation. Replace this source if
// real tax ids are ever collected.
type FabricatedCPF struct {
	rnd *rand.Rand
}

var _ TaxIDSource = FabricatedCPF{}

// TaxID implements TaxIDSource.
func (f FabricatedCPF) TaxID() TaxID {
	digits := make([]int, 9, 11)
	for i := range digits {
		if f.rnd != nil {
			digits[i] = f.rnd.IntN(10)
		} else {
			digits[i] = rand.IntN(10)
		}
	}
	digits = append(digits, cpfCheckDigit(digits))
	digits = append(digits, cpfCheckDigit(digits))

	var b strings.Builder
	for _, d := range digits {
		b.WriteByte(byte('0' + d))
	}
	return TaxID{Type: "CPF", Number: b.String()}
}

// cpfCheckDigit computes the mod-11 check digit over digits, weighting the
// first digit with len(digits)+1 and decreasing by one.
func cpfCheckDigit(digits []int) int {
	sum := 0
	for i, d := range digits {
		sum += (len(digits) + 1 - i) * d
	}
	if r := sum % 11; r > 1 {
		return 11 - r
	}
	return 0
}

// ValidCPF reports whether s is an 11-digit CPF with correct check digits.
func ValidCPF(s string) bool {
	if len(s) != 11 {
		return false
	}
	digits := make([]int, len(s))
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
		digits[i] = int(s[i] - '0')
	}
	return cpfCheckDigit(digits[:9]) == digits[9] && cpfCheckDigit(digits[:10]) == digits[10]
}
