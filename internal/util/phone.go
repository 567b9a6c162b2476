package util

import "strings"

// NormalizePhone converts a transport-prefixed or formatted phone number to
// E.164 form: "whatsapp:+233 24 123-4567" becomes "+233241234567".
// A leading "00" international prefix is treated as "+". Returns "" when the
// input holds no digits.
func NormalizePhone(raw string) string {
	phone := strings.TrimSpace(raw)
	if i := strings.LastIndex(phone, ":"); i >= 0 {
		phone = strings.TrimSpace(phone[i+1:])
	}

	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(phone, "+") {
		digits = strings.TrimPrefix(digits, "00")
	}
	return "+" + digits
}

// WhatsAppAddress formats an E.164 number as a Twilio WhatsApp address
func WhatsAppAddress(phone string) string {
	n := NormalizePhone(phone)
	if n == "" {
		return ""
	}
	return "whatsapp:" + n
}
