// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package classpathfs is the file-backed ClassPath loader (§4.O): it
// resolves a JVM internal class name to bytes by walking an ordered list of
// roots, each either a directory of loose .class files or a .jar/.zip
// archive, and hands the result to jinif.Parse to build a jinif.ClassLoader
// the core frame computer can consult.
//
// Grounded in the teacher's File.New/Close pair in file.go: a loose-file
// root memory-maps each .class file with github.com/edsrzf/mmap-go as it is
// resolved rather than reading it into a heap buffer, and releases the
// mapping explicitly on Close. An archive root is not memory-mapped: the
// .jar is opened once with archive/zip, individual entries are decompressed
// into plain heap buffers, and the archive is closed when the ClassPath
// itself is closed.
package classpathfs

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/binlab/jinif"
	"github.com/binlab/jinif/internal/log"
)

// Root is one entry of a ClassPath's search path, in priority order.
type Root struct {
	// Dir, when non-empty, is a directory tree of loose name/to/Class.class
	// files addressed by JVM internal name.
	Dir string

	// Jar, when non-empty, is a .jar or .zip archive addressed the same
	// way, by internal-name-plus-".class" entry path.
	Jar string
}

// mappedFile pairs an open file with its mmap'd bytes so Close can release
// both, mirroring the teacher's File.f/File.data pair.
type mappedFile struct {
	f    *os.File
	data mmap.MMap
}

func (m *mappedFile) Close() error {
	var err error
	if m.data != nil {
		err = m.data.Unmap()
	}
	if m.f != nil {
		if cerr := m.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ClassPath is a jinif.ClassPath backed by an on-disk search path. It wraps
// a jinif.CachingClassPath so hierarchy lookups are cached after the first
// resolution of each class, and it additionally tracks every mapping it has
// opened so Close can release them all.
type ClassPath struct {
	inner *jinif.CachingClassPath
	opts  *jinif.Options

	roots      []Root
	zipReaders map[string]*zip.ReadCloser
	mapped     []*mappedFile

	logger *log.Helper
}

// Options configures a ClassPath.
type Options struct {
	// ParseOptions is forwarded to jinif.Parse for every class this
	// resolver loads.
	ParseOptions *jinif.Options

	// Logger receives soft-failure diagnostics: a root that doesn't
	// exist, an archive entry that failed to decompress.
	Logger log.Logger
}

// New builds a ClassPath searching roots in order. A class is resolved by
// the first root that contains it; later roots are never consulted once a
// match is found, matching the JVM's own classpath precedence rule.
func New(roots []Root, opts *Options) *ClassPath {
	if opts == nil {
		opts = &Options{}
	}
	cp := &ClassPath{
		roots:      roots,
		zipReaders: make(map[string]*zip.ReadCloser),
		opts:       opts.ParseOptions,
		logger:     log.NewHelper(opts.Logger),
	}
	cp.inner = jinif.NewCachingClassPath(nil, cp.load)
	return cp
}

// CommonSuperClass implements jinif.ClassPath.
func (cp *ClassPath) CommonSuperClass(nameA, nameB string) (string, error) {
	return cp.inner.CommonSuperClass(nameA, nameB)
}

// IsAssignableFrom implements jinif.ClassPath.
func (cp *ClassPath) IsAssignableFrom(sub, sup string) (bool, error) {
	return cp.inner.IsAssignableFrom(sub, sup)
}

// Cache exposes the underlying hierarchy cache, so a caller can
// pre-populate it (e.g. with the bootstrap classes) before handing this
// ClassPath to ComputeFrames.
func (cp *ClassPath) Cache() *jinif.HierarchyCache { return cp.inner.Cache() }

// load resolves name (JVM internal form, slashes not dots) against every
// root in order, used as the jinif.ClassLoader backing this ClassPath.
func (cp *ClassPath) load(name string) (*jinif.ClassFile, error) {
	rel := name + ".class"
	for _, root := range cp.roots {
		if root.Dir != "" {
			cf, err := cp.loadFromDir(root.Dir, rel)
			if err == nil {
				return cf, nil
			}
			cp.logger.Debugf("classpathfs: %s not under %s: %v", name, root.Dir, err)
			continue
		}
		cf, err := cp.loadFromJar(root.Jar, rel)
		if err == nil {
			return cf, nil
		}
		cp.logger.Debugf("classpathfs: %s not in %s: %v", name, root.Jar, err)
	}
	return nil, fmt.Errorf("classpathfs: class %q not found on any root", name)
}

func (cp *ClassPath) loadFromDir(dir, rel string) (*jinif.ClassFile, error) {
	path := filepath.Join(dir, filepath.FromSlash(rel))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("classpathfs: %s is empty", path)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	cp.mapped = append(cp.mapped, &mappedFile{f: f, data: data})
	return jinif.Parse(data, cp.opts)
}

func (cp *ClassPath) loadFromJar(jarPath, rel string) (*jinif.ClassFile, error) {
	zr, err := cp.openJar(jarPath)
	if err != nil {
		return nil, err
	}
	entryName := strings.TrimPrefix(rel, "/")
	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return jinif.Parse(data, cp.opts)
	}
	return nil, fmt.Errorf("classpathfs: %s has no entry %s", jarPath, entryName)
}

func (cp *ClassPath) openJar(jarPath string) (*zip.ReadCloser, error) {
	if zr, ok := cp.zipReaders[jarPath]; ok {
		return zr, nil
	}
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return nil, err
	}
	cp.zipReaders[jarPath] = zr
	return zr, nil
}

// Close releases every mmap'd .class file and every opened archive this
// ClassPath has touched, mirroring the teacher's File.Close unmap-then-
// close-handle order.
func (cp *ClassPath) Close() error {
	var first error
	for _, m := range cp.mapped {
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, zr := range cp.zipReaders {
		if err := zr.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
