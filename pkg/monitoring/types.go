// Package monitoring defines the records served by the web-monitoring API
// and the queries used to request them.
package monitoring

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Tag is a label attached to a page.
type Tag struct {
	UUID string `json:"uuid,omitempty"`
	Name string `json:"name"`
}

// Maintainer is an organization responsible for a page.
type Maintainer struct {
	UUID string `json:"uuid,omitempty"`
	Name string `json:"name"`
}

// Page is a monitored URL.
//
// Group, Versions, Latest are not part of the API payload. They are
// filled in by the classifier and are read-only afterwards.
type Page struct {
	UUID        string       `json:"uuid"`
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	Tags        []Tag        `json:"tags"`
	Maintainers []Maintainer `json:"maintainers"`

	Group    string    `json:"-"`
	Versions []Version `json:"-"`
	Latest   *Version  `json:"-"`
}

// TagNames returns the names of the page's tags in order.
func (p *Page) TagNames() []string {
	names := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		names[i] = t.Name
	}
	return names
}

// MaintainerNames returns the names of the page's maintainers in order.
func (p *Page) MaintainerNames() []string {
	names := make([]string, len(p.Maintainers))
	for i, m := range p.Maintainers {
		names[i] = m.Name
	}
	return names
}

// Earliest returns the oldest known version, or a blank sentinel when the
// page has no versions.
func (p *Page) Earliest() Version {
	if len(p.Versions) == 0 {
		return Version{PageUUID: p.UUID}
	}
	return p.Versions[len(p.Versions)-1]
}

// Version is one captured snapshot of a page.
type Version struct {
	UUID               string         `json:"uuid"`
	PageUUID           string         `json:"page_uuid"`
	CaptureTime        time.Time      `json:"capture_time"`
	StatusCode         *int           `json:"status,omitempty"`
	SourceMetadata     SourceMetadata `json:"source_metadata"`
	ChangeFromPrevious *Change        `json:"change_from_previous,omitempty"`
}

// SourceMetadata is the diff metadata reported by the capture source.
// ErrorCode and LegacyErrorCode are two historical spellings of the same field.
type SourceMetadata struct {
	ErrorCode       ErrorCode `json:"error_code,omitzero"`
	LegacyErrorCode ErrorCode `json:"errorCode,omitzero"`
	DiffLength      int       `json:"diff_length"`
	DiffHash        *string   `json:"diff_hash"`
	TextDiffLength  int       `json:"text_diff_length"`
	TextDiffHash    *string   `json:"text_diff_hash"`
}

// Change links a version to the previous distinct version of its page.
type Change struct {
	UUIDFrom          string            `json:"uuid_from"`
	CurrentAnnotation CurrentAnnotation `json:"current_annotation"`
}

// CurrentAnnotation is the human/automated analysis attached to a change.
type CurrentAnnotation struct {
	Priority *float64 `json:"priority"`
}

// UnknownErrorStatus is the status assumed for an error code that is not
// an HTTP status number.
const UnknownErrorStatus = 599

// errorCode returns whichever spelling of the error code is set.
func (m SourceMetadata) errorCode() ErrorCode {
	if m.ErrorCode.Truthy() {
		return m.ErrorCode
	}
	return m.LegacyErrorCode
}

// IsError reports whether the capture recorded an error.
func (v Version) IsError() bool {
	return v.SourceMetadata.errorCode().Truthy()
}

// Status returns the HTTP status of the capture. An explicit status wins,
// then a numeric error code of 300 or more, then UnknownErrorStatus for any
// other truthy error code. Captures without either are treated as 200.
func (v Version) Status() int {
	if v.StatusCode != nil {
		return *v.StatusCode
	}
	code := v.SourceMetadata.errorCode()
	if !code.Truthy() {
		return 200
	}
	// An error capture never reports a success status.
	if n, ok := code.Number(); ok && n >= 300 {
		return n
	}
	return UnknownErrorStatus
}

// Priority returns the priority of the change annotation, if any.
func (v Version) Priority() *float64 {
	if v.ChangeFromPrevious == nil {
		return nil
	}
	return v.ChangeFromPrevious.CurrentAnnotation.Priority
}

// ErrorCode holds an error code that the API may deliver as a string,
// a number or a boolean.
type ErrorCode struct {
	raw json.RawMessage
}

// NewErrorCode builds an ErrorCode from a Go value. Intended for tests and
// fixtures.
func NewErrorCode(v any) ErrorCode {
	b, err := json.Marshal(v)
	if err != nil {
		return ErrorCode{}
	}
	return ErrorCode{raw: b}
}

// UnmarshalJSON keeps the raw token.
func (c *ErrorCode) UnmarshalJSON(b []byte) error {
	c.raw = append(c.raw[:0], b...)
	return nil
}

// MarshalJSON writes the raw token back, or null.
func (c ErrorCode) MarshalJSON() ([]byte, error) {
	if len(c.raw) == 0 {
		return []byte("null"), nil
	}
	return c.raw, nil
}

// IsZero lets omitzero skip unset codes.
func (c ErrorCode) IsZero() bool {
	return len(c.raw) == 0
}

// Truthy reports whether the code is set to a non-empty, non-zero,
// non-false value.
func (c ErrorCode) Truthy() bool {
	raw := bytes.TrimSpace(c.raw)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "false", `""`, "0":
		return false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0
	}
	return true
}

// Number returns the code as an integer when it is numeric, either as a
// JSON number or as a numeric string.
func (c ErrorCode) Number() (int, bool) {
	raw := bytes.TrimSpace(c.raw)
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		return n, err == nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), true
	}
	return 0, false
}
