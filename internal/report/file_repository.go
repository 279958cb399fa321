package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// FileRepository persists reports as a JSON array in a single file.
type FileRepository struct {
	path string
}

// NewFileRepository creates a FileRepository writing to path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Load reads the saved reports.
// Returns nil and no error if the file does not exist.
func (r *FileRepository) Load(ctx context.Context) ([]Report, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var reports []Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Save writes reports atomically (temp file, then rename).
func (r *FileRepository) Save(ctx context.Context, reports []Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// Path returns the report file path.
func (r *FileRepository) Path() string {
	return r.path
}
