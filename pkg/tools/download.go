package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const defaultDownloadName = "downloaded_file"

func (t *Toolset) downloadFile(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return t.Download(ctx, stringParam(params, "url"), stringParam(params, "filename"))
}

// Download saves url into the work directory and returns
// "path | content-type=... | size=...". Existing files are never overwritten;
// a numeric suffix is added instead.
func (t *Toolset) Download(ctx context.Context, url, filename string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("url is required")
	}
	if filename == "" {
		filename = filenameFromURL(url)
	}
	filename = sanitizeFilename(filename)

	resp, err := t.fetch(ctx, url)
	if err != nil {
		return "", err
	}

	path, err := t.writeUnique(filename, resp.Body)
	if err != nil {
		return "", err
	}

	contentType := resp.ContentType()
	if contentType == "" {
		contentType = "unknown"
	}
	t.logger.Info().Str("url", url).Str("path", path).Int("size", len(resp.Body)).Msg("File downloaded")
	return fmt.Sprintf("%s | content-type=%s | size=%d", path, contentType, len(resp.Body)), nil
}

// writeUnique writes data atomically under the first free name derived from
// filename.
func (t *Toolset) writeUnique(filename string, data []byte) (string, error) {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	for i := 0; ; i++ {
		name := filename
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(t.workDir, name)

		// O_EXCL reserves the name so concurrent downloads cannot collide.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		f.Close()

		tmp := path + ".part"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("write %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			os.Remove(path)
			return "", fmt.Errorf("rename %s: %w", tmp, err)
		}
		return path, nil
	}
}

func filenameFromURL(url string) string {
	name := url
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultDownloadName
	}
	return name
}

func sanitizeFilename(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return defaultDownloadName
	}
	return name
}
