package aggregate

import (
	"bytes"
	"strings"
	"time"

	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
	"github.com/rs/zerolog"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// version builds a capture hours after baseTime.
func version(uuid, pageUUID string, hours int) monitoring.Version {
	return monitoring.Version{
		UUID:        uuid,
		PageUUID:    pageUUID,
		CaptureTime: baseTime.Add(time.Duration(hours) * time.Hour),
	}
}

func withError(v monitoring.Version, code any) monitoring.Version {
	v.SourceMetadata.ErrorCode = monitoring.NewErrorCode(code)
	return v
}

func withStatus(v monitoring.Version, status int) monitoring.Version {
	v.StatusCode = ptr(status)
	return v
}

func withDiff(v monitoring.Version, length int, hash string, textLength int, textHash string) monitoring.Version {
	v.SourceMetadata.DiffLength = length
	v.SourceMetadata.DiffHash = ptr(hash)
	v.SourceMetadata.TextDiffLength = textLength
	v.SourceMetadata.TextDiffHash = ptr(textHash)
	return v
}

func withPriority(v monitoring.Version, p float64) monitoring.Version {
	v.ChangeFromPrevious = &monitoring.Change{
		CurrentAnnotation: monitoring.CurrentAnnotation{Priority: ptr(p)},
	}
	return v
}

func page(uuid, url string, tags ...string) monitoring.Page {
	p := monitoring.Page{UUID: uuid, URL: url}
	for _, t := range tags {
		p.Tags = append(p.Tags, monitoring.Tag{Name: t})
	}
	return p
}

// bufferLogger captures log lines for counting warnings.
func bufferLogger() (*zerolog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.WarnLevel)
	return &logger, &buf
}

func countLines(buf *bytes.Buffer, msg string) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, msg) {
			n++
		}
	}
	return n
}
