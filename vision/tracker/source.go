package tracker

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/fiducial/rimage"
)

// A FrameSource yields frames one at a time. NextFrame returns io.EOF once no frames are left.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// DirectorySource reads the image files of a directory in name order.
type DirectorySource struct {
	paths []string
	next  int
}

// NewDirectorySource lists the image files of dir. Other files are ignored.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list frames in %q", dir)
	}
	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return filepath.Join(dir, e.Name()), !e.IsDir() && rimage.IsImageFile(e.Name())
	})
	return &DirectorySource{paths: files}, nil
}

// Paths returns the files the source reads, in order.
func (ds *DirectorySource) Paths() []string {
	return ds.paths
}

// NextFrame decodes the next file.
func (ds *DirectorySource) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ds.next >= len(ds.paths) {
		return nil, io.EOF
	}
	path := ds.paths[ds.next]
	ds.next++
	return rimage.ReadImageFromFile(path)
}

// SliceSource serves frames held in memory.
type SliceSource struct {
	Frames []image.Image
	next   int
}

// NextFrame returns the next frame.
func (ss *SliceSource) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ss.next >= len(ss.Frames) {
		return nil, io.EOF
	}
	ss.next++
	return ss.Frames[ss.next-1], nil
}
