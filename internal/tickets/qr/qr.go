package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/skip2/go-qrcode"

	"buzz/internal/models"
)

// Payload is the portion of a ticket embedded in its QR code. Kept
// deliberately small so the encoded image stays scannable.
type Payload struct {
	TicketID     string `json:"ticket_id"`
	BookingID    string `json:"booking_id"`
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	AttendeeName string `json:"attendee_name"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// EncryptPayload serializes and encrypts a ticket payload with AES-CFB,
// returning the base64 string that goes into the QR image.
func (g *Generator) EncryptPayload(payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return encryptAES(data, g.secret)
}

// GenerateEncryptedQR encrypts the ticket payload and renders it as a
// PNG QR image.
func (g *Generator) GenerateEncryptedQR(ticket models.Ticket) ([]byte, error) {
	encrypted, err := g.EncryptPayload(Payload{
		TicketID:     ticket.ID,
		BookingID:    ticket.BookingID,
		EventID:      ticket.EventID,
		TicketTypeID: ticket.TicketTypeID,
		AttendeeName: ticket.AttendeeName,
	})
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// DecryptPayload reverses GenerateEncryptedQR's encryption step. Used
// by check-in scanners that read the QR content back.
func (g *Generator) DecryptPayload(encoded string) (*Payload, error) {
	data, err := decryptAES(encoded, g.secret)
	if err != nil {
		return nil, err
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, io.ErrUnexpectedEOF
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])
	return data, nil
}
