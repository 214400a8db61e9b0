package model

import (
	"bytes"
	"strings"
	"time"
)

type ReadStatus string

const (
	ReadStatusUnread ReadStatus = "Unread"
	ReadStatusRead   ReadStatus = "Read"
)

func (s ReadStatus) String() string { return string(s) }

// AttachmentTypeTranscription marks the text attachment the provider adds once a
// voicemail has been transcribed.
const AttachmentTypeTranscription = "AudioTranscription"

// MessageID is a message-store record id. The API sends it as a JSON number, some
// list endpoints as a string; both decode to the same value.
type MessageID string

func (id MessageID) String() string { return string(id) }

func (id *MessageID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	*id = MessageID(strings.Trim(string(b), `"`))
	return nil
}

type Caller struct {
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	ExtensionNumber string `json:"extensionNumber,omitempty"`
	Name            string `json:"name,omitempty"`
	Location        string `json:"location,omitempty"`
}

type Attachment struct {
	ID          MessageID `json:"id"`
	URI         string    `json:"uri"`
	Type        string    `json:"type"`
	ContentType string    `json:"contentType,omitempty"`
}

// Voicemail is a message-store record of type VoiceMail. Transcription is not part of
// the record; the provider client fills it from the transcription attachment.
type Voicemail struct {
	ID                    MessageID    `json:"id"`
	URI                   string       `json:"uri,omitempty"`
	Type                  string       `json:"type,omitempty"`
	From                  *Caller      `json:"from,omitempty"`
	CreationTime          string       `json:"creationTime,omitempty"`
	ReadStatus            ReadStatus   `json:"readStatus,omitempty"`
	VMTranscriptionStatus string       `json:"vmTranscriptionStatus,omitempty"`
	Attachments           []Attachment `json:"attachments,omitempty"`

	Transcription string `json:"-"`
}

func (v Voicemail) CallerName() string {
	if v.From == nil {
		return ""
	}
	return strings.TrimSpace(v.From.Name)
}

func (v Voicemail) CallerNumber() string {
	if v.From == nil {
		return ""
	}
	if n := strings.TrimSpace(v.From.PhoneNumber); n != "" {
		return n
	}
	return strings.TrimSpace(v.From.ExtensionNumber)
}

// ReceivedAt parses CreationTime; ok is false when it is absent or malformed.
func (v Voicemail) ReceivedAt() (time.Time, bool) {
	if v.CreationTime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v.CreationTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (v Voicemail) Read() bool { return v.ReadStatus == ReadStatusRead }

// TranscriptionAttachment returns the first transcription attachment with a download URI.
func (v Voicemail) TranscriptionAttachment() (Attachment, bool) {
	for _, a := range v.Attachments {
		if a.Type == AttachmentTypeTranscription && a.URI != "" {
			return a, true
		}
	}
	return Attachment{}, false
}

// Merge overlays the non-empty fields of full onto v. List records can be incomplete,
// so the orchestrator refreshes them with the single-message view.
func (v Voicemail) Merge(full Voicemail) Voicemail {
	if full.From != nil {
		v.From = full.From
	}
	if full.CreationTime != "" {
		v.CreationTime = full.CreationTime
	}
	if full.ReadStatus != "" {
		v.ReadStatus = full.ReadStatus
	}
	if full.VMTranscriptionStatus != "" {
		v.VMTranscriptionStatus = full.VMTranscriptionStatus
	}
	if len(full.Attachments) > 0 {
		v.Attachments = full.Attachments
	}
	return v
}
