package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"hivemind.ai/internal/persistence/r2s3"
)

// buildArchiveMirror returns nil unless HM_ARCHIVE_MIRROR is enabled.
func buildArchiveMirror(dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("HM_ARCHIVE_MIRROR", false) {
		return nil, nil
	}

	cfg := r2s3.Config{
		Endpoint:        strings.TrimSpace(os.Getenv("HM_S3_ENDPOINT")),
		Bucket:          strings.TrimSpace(os.Getenv("HM_S3_BUCKET")),
		Region:          strings.TrimSpace(os.Getenv("HM_S3_REGION")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("HM_S3_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("HM_S3_SECRET_ACCESS_KEY")),
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("HM_ARCHIVE_MIRROR=true but HM_S3_ENDPOINT/HM_S3_BUCKET/HM_S3_ACCESS_KEY_ID/HM_S3_SECRET_ACCESS_KEY are not fully set")
	}
	client, err := r2s3.New(cfg)
	if err != nil {
		return nil, err
	}

	return r2s3.NewMirror(client, r2s3.MirrorConfig{
		Root:    dataDir,
		Prefix:  strings.TrimSpace(os.Getenv("HM_S3_PREFIX")),
		Workers: envInt("HM_S3_UPLOAD_WORKERS", 1),
	}, logger), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
