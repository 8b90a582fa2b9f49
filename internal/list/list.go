package list

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"pgbackup/internal/remote"
	"pgbackup/internal/util"

	"github.com/goccy/go-json"
)

type Lister interface {
	List(ctx context.Context, prefix string) ([]remote.ObjectInfo, error)
}

type Info struct {
	Key          string  `json:"key"`
	S3Path       string  `json:"s3_path"`
	Size         int64   `json:"size"`
	SizeMB       float64 `json:"size_mb"`
	LastModified string  `json:"last_modified"`
	StorageClass string  `json:"storage_class,omitempty"`
	Encrypted    bool    `json:"encrypted"`
	ManifestKey  string  `json:"manifest_key,omitempty"`
}

type Output struct {
	Bucket  string `json:"bucket"`
	Prefix  string `json:"prefix"`
	Backups []Info `json:"backups"`
	Summary struct {
		TotalBackups int     `json:"total_backups"`
		TotalSizeMB  float64 `json:"total_size_mb"`
	} `json:"summary"`
}

// Build groups objects under prefix into backups (newest first), pairing
// each artifact with its manifest sidecar. limit <= 0 means no limit.
func Build(objects []remote.ObjectInfo, bucket, prefix string, limit int) Output {
	manifests := make(map[string]bool)
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, util.ManifestSuffix) {
			manifests[strings.TrimSuffix(obj.Key, util.ManifestSuffix)] = true
		}
	}

	output := Output{
		Bucket:  bucket,
		Prefix:  prefix,
		Backups: []Info{},
	}

	var totalBytes int64
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, util.ManifestSuffix) {
			continue
		}
		if limit > 0 && len(output.Backups) >= limit {
			break
		}

		info := Info{
			Key:          obj.Key,
			S3Path:       util.S3URI(bucket, obj.Key),
			Size:         obj.Size,
			SizeMB:       float64(obj.Size*100/1024/1024) / 100,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
			StorageClass: obj.StorageClass,
			Encrypted:    strings.HasSuffix(obj.Key, ".age"),
		}
		if manifests[obj.Key] {
			info.ManifestKey = util.ManifestKey(obj.Key)
		}

		output.Backups = append(output.Backups, info)
		totalBytes += obj.Size
	}

	output.Summary.TotalBackups = len(output.Backups)
	output.Summary.TotalSizeMB = float64(totalBytes*100/1024/1024) / 100
	return output
}

func Run(ctx context.Context, lister Lister, bucket, prefix string, limit int, out io.Writer) error {
	objects, err := lister.List(ctx, prefix)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(Build(objects, bucket, prefix, limit)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
