package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// sweepLogs applies the retention policy to an existing log directory.
//
// Logs older than cleanupDays are deleted; remaining uncompressed logs older
// than rotateDays are gzip-compressed in place. Failures are ignored: retention
// is housekeeping and must never block a run.
func sweepLogs(dir string, rotateDays, cleanupDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	now := time.Now()
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "run-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		path := filepath.Join(dir, e.Name())

		if cleanupDays > 0 && age > days(cleanupDays) {
			os.Remove(path)
			continue
		}
		if rotateDays > 0 && age > days(rotateDays) && !strings.HasSuffix(e.Name(), ".gz") {
			compressLog(path)
		}
	}
}

func compressLog(path string) {
	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(dst)
	_, copyErr := io.Copy(gz, src)
	if err := gz.Close(); copyErr == nil {
		copyErr = err
	}
	if err := dst.Close(); copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
