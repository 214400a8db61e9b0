package model

// Payload is the chat-webhook body (Discord execute-webhook format).
type Payload struct {
	Content  string  `json:"content,omitempty"`
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title     string  `json:"title,omitempty"`
	Color     int     `json:"color,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"` // ISO8601
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// FieldValue returns the value of the first embed field with the given name.
func (p Payload) FieldValue(name string) (string, bool) {
	for _, e := range p.Embeds {
		for _, f := range e.Fields {
			if f.Name == name {
				return f.Value, true
			}
		}
	}
	return "", false
}
