package rbtree

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
	"github.com/Sumatoshi-tech/rbarena/pkg/safeconv"
)

// ErrBadFile reports a file that was not written by Save.
var ErrBadFile = errors.New("rbtree: not a saved tree")

var fileMagic = [4]byte{'R', 'B', 'T', '1'}

type fileHeader struct {
	Magic [4]byte
	Root  int32
	Count uint32
}

// Save writes the tree to path. The arena is hibernated for the duration of
// the write and booted again before returning.
func (tree *RBTree) Save(path string) (err error) {
	store := tree.arena

	if !store.Hibernated() {
		threshold := store.HibernationThreshold
		store.HibernationThreshold = 0
		store.Hibernate()
		store.HibernationThreshold = threshold

		defer func() {
			err = errors.Join(err, store.Boot())
		}()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	buffered := bufio.NewWriter(file)

	header := fileHeader{
		Magic: fileMagic,
		Root:  int32(tree.root),
		Count: safeconv.MustIntToUint32(tree.count),
	}

	err = binary.Write(buffered, binary.BigEndian, header)
	if err != nil {
		return fmt.Errorf("write tree header: %w", err)
	}

	_, err = store.WriteTo(buffered)
	if err != nil {
		return fmt.Errorf("write arena: %w", err)
	}

	err = buffered.Flush()
	if err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}

	tree.logger.Debug("tree saved", "path", path, "nodes", tree.count)

	return nil
}

// Load reads a tree written by Save and verifies its invariants.
func Load(path string, opts ...Option) (*RBTree, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	tree, err := Decode(bufio.NewReader(file), opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	tree.logger.Debug("tree loaded", "path", path, "nodes", tree.count)

	return tree, nil
}

// Decode reads a tree in the format written by Save.
func Decode(r io.Reader, opts ...Option) (*RBTree, error) {
	var header fileHeader

	err := binary.Read(r, binary.BigEndian, &header)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: short header: %w", ErrBadFile, err)
	}

	if err != nil {
		return nil, fmt.Errorf("read tree header: %w", err)
	}

	if header.Magic != fileMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadFile, header.Magic[:])
	}

	tree := New(opts...)

	_, err = tree.arena.ReadFrom(r)
	if errors.Is(err, arena.ErrCorrupt) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: read arena: %w", ErrBadFile, err)
	}

	if err != nil {
		return nil, fmt.Errorf("read arena: %w", err)
	}

	err = tree.arena.Boot()
	if err != nil {
		return nil, fmt.Errorf("boot arena: %w", err)
	}

	tree.root = arena.Handle(header.Root)
	tree.count = int(header.Count)

	if tree.root != arena.None && !tree.arena.Valid(tree.root) {
		return nil, fmt.Errorf("%w: root handle %d is not live", ErrBadFile, tree.root)
	}

	err = tree.Check()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFile, err)
	}

	return tree, nil
}
