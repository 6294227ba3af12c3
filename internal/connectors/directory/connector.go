// Package directory implements a DocumentSource over a local inbox, as
// produced by an export of the document portal.
//
// Layout:
//
//	<inbox>/owners.toml        optional owner list
//	<inbox>/<owner key>/*.pdf  documents, the file stem is the document id
//
// Without owners.toml every subdirectory is an owner named after its key.
package directory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.DocumentSource = (*Connector)(nil)

const (
	// OwnersFile is the optional owner list at the inbox root.
	OwnersFile = "owners.toml"

	// DefaultExtension selects the documents of an owner directory.
	DefaultExtension = ".pdf"

	// sourceDateLayout formats modification times as source dates.
	sourceDateLayout = "2006-01-02"
)

// ownersFile is the schema of owners.toml.
type ownersFile struct {
	Owners []ownerEntry `toml:"owner"`
}

type ownerEntry struct {
	Key  string `toml:"key"`
	Name string `toml:"name"`

	// Dates overrides the source date of individual documents.
	Dates map[string]string `toml:"dates"`
}

// Connector reads owners and documents from an inbox directory.
type Connector struct {
	root string
	ext  string
	log  logrus.FieldLogger
}

// New creates a connector rooted at inbox.
func New(inbox string, log logrus.FieldLogger) *Connector {
	return &Connector{
		root: inbox,
		ext:  DefaultExtension,
		log:  log.WithField("component", "source.directory"),
	}
}

// Root returns the inbox directory.
func (c *Connector) Root() string {
	return c.root
}

// ListOwners returns the owners sorted by key.
func (c *Connector) ListOwners(ctx context.Context) ([]domain.Owner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := c.readOwners()
	if err != nil {
		return nil, err
	}
	owners := make([]domain.Owner, 0, len(entries))
	for _, e := range entries {
		owners = append(owners, domain.Owner{Key: e.Key, Name: e.Name})
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].Key < owners[j].Key })
	return owners, nil
}

// ListDocuments returns the documents of an owner sorted by id.
// An owner without a directory has no documents.
func (c *Connector) ListDocuments(ctx context.Context, owner domain.Owner) ([]domain.DocumentRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(owner.Key); err != nil {
		return nil, err
	}
	dir := filepath.Join(c.root, owner.Key)
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.WithField("owner", owner.Key).Debug("No document directory for owner")
			return nil, nil
		}
		return nil, fmt.Errorf("list documents of %s: %w", owner.Key, err)
	}

	overrides := c.dateOverrides(owner.Key)
	var refs []domain.DocumentRef
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || filepath.Ext(name) != c.ext {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		ref := domain.DocumentRef{ID: id}
		if date, ok := overrides[id]; ok {
			ref.SourceDate = date
		} else if info, err := d.Info(); err == nil {
			ref.SourceDate = info.ModTime().UTC().Format(sourceDateLayout)
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// Download reads a document.
func (c *Connector) Download(ctx context.Context, owner domain.Owner, ref domain.DocumentRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(owner.Key); err != nil {
		return nil, err
	}
	if err := checkName(ref.ID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(c.root, owner.Key, ref.ID+c.ext))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("document %s/%s: %w", owner.Key, ref.ID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("download %s/%s: %w", owner.Key, ref.ID, err)
	}
	return data, nil
}

// readOwners loads owners.toml, falling back to the subdirectories.
func (c *Connector) readOwners() ([]ownerEntry, error) {
	data, err := os.ReadFile(filepath.Join(c.root, OwnersFile))
	switch {
	case err == nil:
		var f ownersFile
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", OwnersFile, err)
		}
		seen := make(map[string]struct{}, len(f.Owners))
		for i, o := range f.Owners {
			if err := checkName(o.Key); err != nil {
				return nil, fmt.Errorf("%s owner %d: %w", OwnersFile, i+1, err)
			}
			if _, dup := seen[o.Key]; dup {
				return nil, fmt.Errorf("%s: duplicate owner %q: %w", OwnersFile, o.Key, domain.ErrInvalidInput)
			}
			seen[o.Key] = struct{}{}
			if o.Name == "" {
				f.Owners[i].Name = o.Key
			}
		}
		return f.Owners, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", OwnersFile, err)
	}

	dirents, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("inbox %s: %w", c.root, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var owners []ownerEntry
	for _, d := range dirents {
		if d.IsDir() && !hidden(d.Name()) {
			owners = append(owners, ownerEntry{Key: d.Name(), Name: d.Name()})
		}
	}
	return owners, nil
}

func (c *Connector) dateOverrides(key string) map[string]string {
	entries, err := c.readOwners()
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Dates
		}
	}
	return nil
}

func checkName(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid name %q: %w", s, domain.ErrInvalidInput)
	}
	return nil
}
