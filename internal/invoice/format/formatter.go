package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var tokenRe = regexp.MustCompile(`\{(YYYY|YY|MM|DD|SEQ)(\d*)\}`)

const DefaultInvoiceNumberTemplate = "INV-{SEQ5}"

// FormatInvoiceNumber renders template for the seq-th invoice issued at issuedAt.
// Supported tokens: {YYYY} {YY} {MM} {DD} {SEQ} and {SEQn}, which zero-pads
// the sequence to n digits. Longer sequences are never truncated.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	var badToken string
	out := tokenRe.ReplaceAllStringFunc(template, func(tok string) string {
		m := tokenRe.FindStringSubmatch(tok)
		name, width := m[1], m[2]
		if name != "SEQ" && width != "" {
			badToken = tok
			return tok
		}
		switch name {
		case "YYYY":
			return issuedAt.Format("2006")
		case "YY":
			return issuedAt.Format("06")
		case "MM":
			return issuedAt.Format("01")
		case "DD":
			return issuedAt.Format("02")
		}
		if width == "" {
			return strconv.FormatInt(seq, 10)
		}
		n, err := strconv.Atoi(width)
		if err != nil || n <= 0 || n > 18 {
			badToken = tok
			return tok
		}
		return fmt.Sprintf("%0*d", n, seq)
	})
	if badToken != "" {
		return "", fmt.Errorf("invalid token %s in invoice number template", badToken)
	}
	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice number template: %s", template)
	}
	return out, nil
}

// ValidateTemplate checks that template renders and carries a sequence token,
// so every issued number is unique.
func ValidateTemplate(template string) error {
	if !strings.Contains(template, "{SEQ") {
		return fmt.Errorf("invoice number template %q has no sequence token", template)
	}
	_, err := FormatInvoiceNumber(template, time.Unix(0, 0).UTC(), 1)
	return err
}
