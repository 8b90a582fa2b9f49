package backup

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"pgbackup/internal/dump"

	"github.com/goccy/go-json"
)

// Result is what the function returns to its invoker.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type successBody struct {
	Message          string  `json:"message"`
	Database         string  `json:"database"`
	FileSizeMB       float64 `json:"file_size_mb"`
	OriginalSizeMB   float64 `json:"original_size_mb"`
	Compression      string  `json:"compression"`
	CompressionRatio float64 `json:"compression_ratio"`
	Tables           int     `json:"tables"`
	Sequences        int     `json:"sequences"`
	Encrypted        bool    `json:"encrypted"`
	S3Location       string  `json:"s3_location"`
	Timestamp        string  `json:"timestamp"`
	RunID            string  `json:"run_id"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

type errorBody struct {
	Error string `json:"error"`
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func megabytes(n int64) float64 {
	return round2(float64(n) / 1024 / 1024)
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

func Success(database, location, runID string, a *Artifact, duration time.Duration) Result {
	return Result{
		StatusCode: http.StatusOK,
		Body: encode(successBody{
			Message:          "Backup completed successfully",
			Database:         database,
			FileSizeMB:       megabytes(a.StoredSize),
			OriginalSizeMB:   megabytes(a.OriginalSize),
			Compression:      a.Compression,
			CompressionRatio: round2(a.Ratio),
			Tables:           a.Stats.Tables,
			Sequences:        a.Stats.Sequences,
			Encrypted:        a.Encrypted,
			S3Location:       location,
			Timestamp:        a.Timestamp,
			RunID:            runID,
			DurationSeconds:  round2(duration.Seconds()),
		}),
	}
}

// humanDuration renders whole minutes as "14 minutes" and anything else in
// time.Duration notation.
func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

// ErrorMessage is the user-facing text of a failed run.
func ErrorMessage(err error, timeout time.Duration) string {
	if errors.Is(err, dump.ErrTimeout) {
		return "Backup timed out after " + humanDuration(timeout)
	}
	return "Backup failed: " + err.Error()
}

func Failure(err error, timeout time.Duration) Result {
	return Result{
		StatusCode: http.StatusInternalServerError,
		Body:       encode(errorBody{Error: ErrorMessage(err, timeout)}),
	}
}
