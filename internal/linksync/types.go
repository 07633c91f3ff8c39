// Package linksync moves a backup from a primary device to a newly linked
// secondary device through the relay.
//
// The primary waits for the secondary to link, exports a backup sealed under
// an ephemeral key, uploads it as a transient attachment and tells the relay
// where to find it. The secondary waits for that notice, downloads the
// payload and restores it. The key itself travels out of band, inside the
// provisioning message.
package linksync

import (
	"context"

	"github.com/matheus3301/wpplink/internal/backup/archive"
)

// LinkedDevice is the relay's description of a device that just linked.
type LinkedDevice struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name"`
	LastSeen uint64 `json:"lastSeen"`
	Created  uint64 `json:"created"`
}

// TransferArchive locates an uploaded backup payload.
type TransferArchive struct {
	CDN uint32 `json:"cdn"`
	Key string `json:"key"`
}

// MarkUploadedRequest is the body of PUT /v1/devices/transfer_archive.
type MarkUploadedRequest struct {
	DestinationDeviceID      uint32          `json:"destinationDeviceId"`
	DestinationDeviceCreated uint64          `json:"destinationDeviceCreated"`
	TransferArchive          TransferArchive `json:"transferArchive"`
}

// Backups produces and consumes sealed backups.
type Backups interface {
	ExportEncrypted(ctx context.Context, key []byte) ([]byte, error)
	ImportEncrypted(ctx context.Context, payload, key []byte) (archive.RestoreSummary, error)
}

// Attachments stores transient payloads.
type Attachments interface {
	Upload(ctx context.Context, payload []byte) (TransferArchive, error)
	Download(ctx context.Context, ta TransferArchive) ([]byte, error)
}
