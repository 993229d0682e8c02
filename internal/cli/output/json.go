package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter writes data as indented JSON.
//
// HTML escaping is off so otpauth:// URLs keep their literal '&'.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
