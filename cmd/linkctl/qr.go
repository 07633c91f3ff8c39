package main

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const linkScheme = "wpplink"

// provisioningLink carries what the new device needs to restore: the
// token it linked with and the ephemeral backup key.
func provisioningLink(token string, key []byte) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("key", base64.RawURLEncoding.EncodeToString(key))
	return (&url.URL{Scheme: linkScheme, Host: "link", RawQuery: q.Encode()}).String()
}

func parseProvisioningLink(raw string) (token string, key []byte, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, err
	}
	if u.Scheme != linkScheme || u.Host != "link" {
		return "", nil, errors.New("not a wpplink provisioning link")
	}
	key, err = base64.RawURLEncoding.DecodeString(u.Query().Get("key"))
	if err != nil {
		return "", nil, err
	}
	return u.Query().Get("token"), key, nil
}

// renderQR converts a string to a compact terminal QR code using Unicode
// half-block characters. Two bitmap rows become one terminal line.
func renderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", err
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
