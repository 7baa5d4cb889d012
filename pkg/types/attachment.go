package types

// AttachmentType says how an attachment is handed to the model.
type AttachmentType string

const (
	AttachmentFile  AttachmentType = "file"
	AttachmentImage AttachmentType = "image"
)

// Attachment is a file reference sent along with one outbound message.
type Attachment struct {
	Type        AttachmentType `json:"type"`
	Path        string         `json:"path"`
	DisplayName string         `json:"displayName,omitempty"`
}
