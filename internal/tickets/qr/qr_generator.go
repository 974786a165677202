package qr

import (
	"github.com/skip2/go-qrcode"
)

// Generate renders the ticket identifier as a PNG QR code for the ticket
// email. The door scanner reads the ticketId back out and posts it to the
// check-in endpoint.
func Generate(ticketID string) ([]byte, error) {
	return qrcode.Encode(ticketID, qrcode.Medium, 256)
}
