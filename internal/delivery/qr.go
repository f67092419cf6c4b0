package delivery

import (
	qrcode "github.com/skip2/go-qrcode"
)

// SanctuaryQR renders the customer's sanctuary access link as a PNG QR
// code, embedded in the delivery payload when an order completes.
func SanctuaryQR(url string) ([]byte, error) {
	return qrcode.Encode(url, qrcode.Medium, 256)
}
