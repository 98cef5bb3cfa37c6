// Package program runs one recovery: it loads both inputs, locates the
// registration roots and builds the type graph.
package program

import (
	"github.com/pkg/errors"

	"github.com/go-delve/aotgraph/pkg/binder"
	"github.com/go-delve/aotgraph/pkg/image"
	"github.com/go-delve/aotgraph/pkg/locate"
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/metadata"
	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
	"github.com/go-delve/aotgraph/pkg/typegraph"
)

// Options configures a run.
type Options struct {
	// Literal is the name of the last code generation module, used to find
	// the code registration root.
	Literal string
	// Workers bounds the concurrency of the root scan.
	Workers int

	FollowThunks bool
	MaxThunkHops int

	// Revision overrides the revision read from the metadata header.
	Revision revision.Revision

	// StringCacheSize is the number of image strings kept in memory.
	StringCacheSize int

	// CodeRegistration and MetadataRegistration, when both are set, are
	// used instead of scanning the image.
	CodeRegistration     uint64
	MetadataRegistration uint64
}

func (o *Options) explicitRoots() bool {
	return o.CodeRegistration != 0 && o.MetadataRegistration != 0
}

// Program is the result of a successful run.
type Program struct {
	Image    *image.Image
	Metadata *metadata.Metadata
	Tables   *registration.Tables
	Graph    *typegraph.Graph

	// Revision is the revision the registration tables were decoded with.
	Revision revision.Revision
	// Located is set when the roots were found by scanning.
	Located bool
}

// Open reads the native image and the metadata blob from disk and calls
// Load.
func Open(imagePath, metadataPath string, opts Options) (*Program, error) {
	img, err := image.Open(imagePath, opts.StringCacheSize)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", imagePath)
	}
	md, err := metadata.Open(metadataPath, opts.Revision)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", metadataPath)
	}
	return build(img, md, opts)
}

// Load runs a recovery over in-memory inputs. Any error aborts the run and
// no graph is returned.
func Load(imageData, metadataData []byte, opts Options) (*Program, error) {
	img, err := image.New(imageData, opts.StringCacheSize)
	if err != nil {
		return nil, err
	}
	md, err := metadata.Load(metadataData, opts.Revision)
	if err != nil {
		return nil, err
	}
	return build(img, md, opts)
}

func build(img *image.Image, md *metadata.Metadata, opts Options) (*Program, error) {
	logger := logflags.LoaderLogger()
	p := &Program{Image: img, Metadata: md, Revision: md.Revision}

	codeAddr, metaAddr := opts.CodeRegistration, opts.MetadataRegistration
	if !opts.explicitRoots() {
		res, err := locate.Locate(img, md.Revision, len(md.Images), len(md.Types), locate.Options{
			Literal: opts.Literal,
			Workers: opts.Workers,
		})
		if err != nil {
			return nil, err
		}
		codeAddr, metaAddr = res.CodeRegistration, res.MetadataRegistration
		p.Revision = res.Revision
		p.Located = true
	} else {
		logger.Infof("using code registration %#x and metadata registration %#x", codeAddr, metaAddr)
	}

	tables, err := registration.Load(img, p.Revision, codeAddr, metaAddr, len(md.Types))
	if err != nil {
		return nil, err
	}
	p.Tables = tables

	b := binder.New(tables, binder.Options{FollowThunks: opts.FollowThunks, MaxHops: opts.MaxThunkHops})
	g, err := typegraph.Build(md, tables, b)
	if err != nil {
		return nil, err
	}
	p.Graph = g
	return p, nil
}
