package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Dir writes each collection to <dir>/<name>.json. Files are replaced by
// rename so a crash mid-write leaves the previous version intact.
type Dir struct {
	dir string
}

func NewDir(dir string) (*Dir, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Dir{dir: dir}, nil
}

func (d *Dir) path(c Collection) string {
	return filepath.Join(d.dir, string(c)+".json")
}

func (d *Dir) Load(ctx context.Context) (*Data, error) {
	raw := make(map[Collection][]byte)
	for _, c := range Collections() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err := os.ReadFile(d.path(c))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", c, err)
		}
		raw[c] = payload
	}
	return decode(raw)
}

func (d *Dir) Save(_ context.Context, c Collection, v any) error {
	payload, err := encode(c, v)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		return fmt.Errorf("formatting %s: %w", c, err)
	}

	tmp, err := os.CreateTemp(d.dir, string(c)+".*.tmp")
	if err != nil {
		return fmt.Errorf("saving %s: %w", c, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pretty.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("saving %s: %w", c, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving %s: %w", c, err)
	}
	if err := os.Rename(tmp.Name(), d.path(c)); err != nil {
		return fmt.Errorf("saving %s: %w", c, err)
	}
	return nil
}

func (d *Dir) Close() error {
	return nil
}
