package assets

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog"
)

// extractMetadata pulls whatever metadata is obtainable for the asset type.
// Everything here is best-effort: a file we cannot decode still gets stored,
// it just carries less metadata.
func extractMetadata(path, assetType string, logger zerolog.Logger) map[string]string {
	md := map[string]string{}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext != "" {
		md["format"] = ext
	}

	switch assetType {
	case "image":
		if dims, format, err := imageDimensions(path); err == nil {
			md["format"] = format
			md["dimensions"] = dims
		} else {
			logger.Debug().Str("file", path).Err(err).Msg("image metadata unavailable")
		}
	case "document":
		if ext == "pdf" {
			if pages, err := api.PageCountFile(path); err == nil {
				md["pages"] = fmt.Sprintf("%d", pages)
			} else {
				logger.Debug().Str("file", path).Err(err).Msg("pdf page count unavailable")
			}
		}
	}
	return md
}

func imageDimensions(path string) (dims, format string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), format, nil
}
