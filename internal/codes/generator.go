// Package codes issues scannable article codes and renders them as Code 128
// identifier images.
package codes

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockroom/internal/id/uuid"
)

// CodeLength is the number of hex characters in a generated code.
const CodeLength = 8

var validCode = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

// ErrInvalidCode is returned for codes that cannot name a file safely.
var ErrInvalidCode = errors.New("invalid code")

// Config controls where identifier images are written and their size.
type Config struct {
	Dir    string
	Width  int
	Height int
}

// Generator owns the identifier-image directory.
type Generator struct {
	dir    string
	width  int
	height int
	ids    uuid.Generator
	logger *zap.Logger
}

// New prepares the directory and returns a Generator.
func New(cfg Config, logger *zap.Logger) (*Generator, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("codes dir is required")
	}
	if cfg.Width <= 0 {
		cfg.Width = 400
	}
	if cfg.Height <= 0 {
		cfg.Height = 120
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve codes dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create codes dir: %w", err)
	}
	return &Generator{
		dir:    dir,
		width:  cfg.Width,
		height: cfg.Height,
		ids:    uuid.New(),
		logger: logger.Named("codes"),
	}, nil
}

// NewCode returns a fresh scannable code.
func (g *Generator) NewCode() string {
	return g.ids.ShortHex(CodeLength)
}

// Path returns where the identifier image for code lives.
func (g *Generator) Path(code string) (string, error) {
	if !validCode.MatchString(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return filepath.Join(g.dir, code+".png"), nil
}

// Ensure writes the identifier image for code unless it already exists and
// returns its path.
func (g *Generator) Ensure(_ context.Context, code string) (string, error) {
	path, err := g.Path(code)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		return path, nil
	}
	img, err := g.render(code)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, img); err != nil {
		return "", err
	}
	g.logger.Debug("identifier image written", zap.String("code", code), zap.String("path", path))
	return path, nil
}

// Open returns the identifier image for code, writing it first when needed.
func (g *Generator) Open(ctx context.Context, code string) (io.ReadCloser, error) {
	path, err := g.Ensure(ctx, code)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identifier image: %w", err)
	}
	return f, nil
}

// Remove deletes the identifier image for code; a missing file is fine.
func (g *Generator) Remove(code string) error {
	path, err := g.Path(code)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove identifier image: %w", err)
	}
	return nil
}

func (g *Generator) render(code string) (barcode.Barcode, error) {
	bc, err := code128.Encode(code)
	if err != nil {
		return nil, fmt.Errorf("encode code128 %q: %w", code, err)
	}
	width := max(g.width, bc.Bounds().Dx())
	scaled, err := barcode.Scale(bc, width, g.height)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}
	return scaled, nil
}

func writeAtomic(path string, img barcode.Barcode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename identifier image: %w", err)
	}
	return nil
}
