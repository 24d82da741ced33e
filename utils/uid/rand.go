package uid

import (
	"encoding/base64"

	"github.com/gofrs/uuid"
)

// NewId returns a short url-safe identifier for receivers and queues.
func NewId() string {
	id, _ := uuid.NewV4()
	b64 := base64.URLEncoding.EncodeToString(id.Bytes()[:12])
	return b64
}
