// Package format turns voicemail records into chat-webhook payloads.
package format

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/vm-relay/internal/model"
)

const (
	// MaxFieldLen is the embed field value limit of the chat webhook.
	MaxFieldLen = 1024
	// TruncationMarker ends any value that was cut to fit MaxFieldLen.
	TruncationMarker = "…"
)

// Placeholders for data the provider did not send.
const (
	UnknownCaller   = "Unknown"
	NotAvailable    = "N/A"
	NoTranscription = "(No transcription available yet.)"
)

const (
	DefaultContent = "New voicemail"
	EmbedTitle     = "Voicemail received"

	FieldExtension   = "Extension"
	FieldCaller      = "Caller"
	FieldNumber      = "Number"
	FieldTime        = "Time"
	FieldTranscribed = "Transcription"

	embedColor = 0x0073AE
	timeLayout = "2006-01-02 15:04:05 MST"
)

// Options tweak the payload without changing the field layout.
type Options struct {
	Content  string         // message text above the embed; DefaultContent when empty
	Username string         // overrides the webhook's display name when set
	Location *time.Location // zone for the Time field; the record's own offset when nil
}

// Format maps a voicemail to a webhook payload. It never returns an empty field value.
func Format(extension string, v model.Voicemail, opts Options) model.Payload {
	content := opts.Content
	if content == "" {
		content = DefaultContent
	}

	embed := model.Embed{
		Title: EmbedTitle,
		Color: embedColor,
		Fields: []model.Field{
			{Name: FieldExtension, Value: orDefault(extension, NotAvailable), Inline: true},
			{Name: FieldCaller, Value: orDefault(v.CallerName(), UnknownCaller), Inline: true},
			{Name: FieldNumber, Value: orDefault(v.CallerNumber(), NotAvailable), Inline: true},
			{Name: FieldTime, Value: receivedTime(v, opts.Location), Inline: false},
			{Name: FieldTranscribed, Value: Truncate(orDefault(v.Transcription, NoTranscription), MaxFieldLen), Inline: false},
		},
	}
	if t, ok := v.ReceivedAt(); ok {
		embed.Timestamp = t.UTC().Format(time.RFC3339)
	}

	return model.Payload{
		Content:  content,
		Username: opts.Username,
		Embeds:   []model.Embed{embed},
	}
}

// Truncate cuts s to at most limit runes. A cut value ends with TruncationMarker.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(TruncationMarker)
	if keep <= 0 {
		return string([]rune(TruncationMarker)[:limit])
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:keep]), " \t\n") + TruncationMarker
}

func receivedTime(v model.Voicemail, loc *time.Location) string {
	t, ok := v.ReceivedAt()
	if !ok {
		// keep whatever the provider sent rather than dropping it
		return Truncate(orDefault(v.CreationTime, NotAvailable), MaxFieldLen)
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(timeLayout)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
