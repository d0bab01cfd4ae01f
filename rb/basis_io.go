// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package rb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Basis function vectors are full-order (mesh-sized) and dominate snapshot
// storage, so they live in their own files, one per basis index, and can be
// skipped entirely by operator-only online deployments. Binary files are
// length-prefixed little-endian float64 streams; text files are portable,
// one coefficient per line.

func basisFileName(i int, binary bool) string {
	if binary {
		return fmt.Sprintf("bf_%06d.bin", i)
	}
	return fmt.Sprintf("bf_%06d.txt", i)
}

// WriteBasisFunctions persists every in-memory basis function vector under
// dir, in binary or text form.
func (e *Evaluation) WriteBasisFunctions(dir string, binary bool) error {
	start := time.Now()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("rb: create basis function directory: %w", err)
	}
	// reject nil slots before launching any writer so an error never
	// returns with writes still in flight
	for i, bf := range e.BasisFunctions {
		if bf == nil {
			return fmt.Errorf("rb: basis function %d is not in memory", i)
		}
	}
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, bf := range e.BasisFunctions {
		i, bf := i, bf
		g.Go(func() error {
			return writeBasisFunction(filepath.Join(dir, basisFileName(i, binary)), bf, binary)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.log.Debug().Str("dir", dir).Int("n", len(e.BasisFunctions)).Bool("binary", binary).Dur("took", time.Since(start)).Msg("wrote basis functions")
	return nil
}

// ReadBasisFunctions loads the basis function vectors for the current basis
// size, as recorded by a preceding ReadOfflineData. All vectors must share
// the same full-order dimension.
func (e *Evaluation) ReadBasisFunctions(dir string, binary bool) error {
	start := time.Now()
	n := e.NbBasisFunctions()
	loaded := make([]*mat.VecDense, n)
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			bf, err := readBasisFunction(filepath.Join(dir, basisFileName(i, binary)), binary)
			if err != nil {
				return err
			}
			loaded[i] = bf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := 1; i < n; i++ {
		if loaded[i].Len() != loaded[0].Len() {
			return fmt.Errorf("%w: basis function %d has dimension %d, basis function 0 has %d",
				ErrCorruptData, i, loaded[i].Len(), loaded[0].Len())
		}
	}
	copy(e.BasisFunctions, loaded)
	e.log.Debug().Str("dir", dir).Int("n", n).Dur("took", time.Since(start)).Msg("read basis functions")
	return nil
}

func writeBasisFunction(path string, bf *mat.VecDense, asBinary bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rb: write %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if asBinary {
		if err := binary.Write(w, binary.LittleEndian, uint64(bf.Len())); err != nil {
			return fmt.Errorf("rb: write %s: %w", filepath.Base(path), err)
		}
		for i := 0; i < bf.Len(); i++ {
			if err := binary.Write(w, binary.LittleEndian, bf.AtVec(i)); err != nil {
				return fmt.Errorf("rb: write %s: %w", filepath.Base(path), err)
			}
		}
	} else {
		if _, err := fmt.Fprintln(w, bf.Len()); err != nil {
			return fmt.Errorf("rb: write %s: %w", filepath.Base(path), err)
		}
		for i := 0; i < bf.Len(); i++ {
			if _, err := fmt.Fprintln(w, strconv.FormatFloat(bf.AtVec(i), 'e', -1, 64)); err != nil {
				return fmt.Errorf("rb: write %s: %w", filepath.Base(path), err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("rb: write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func readBasisFunction(path string, asBinary bool) (*mat.VecDense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rb: read %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	if asBinary {
		var n uint64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, filepath.Base(path), err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: %s: empty basis function vector", ErrCorruptData, filepath.Base(path))
		}
		data := make([]float64, n)
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return nil, fmt.Errorf("%w: %s: truncated after header says %d coefficients: %v", ErrCorruptData, filepath.Base(path), n, err)
		}
		return mat.NewVecDense(int(n), data), nil
	}

	var n int
	if _, err := fmt.Fscanln(r, &n); err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %s: bad coefficient count: %v", ErrCorruptData, filepath.Base(path), err)
	}
	data := make([]float64, n)
	for i := range data {
		if _, err := fmt.Fscanln(r, &data[i]); err != nil {
			return nil, fmt.Errorf("%w: %s: coefficient %d of %d: %v", ErrCorruptData, filepath.Base(path), i, n, err)
		}
	}
	return mat.NewVecDense(n, data), nil
}
