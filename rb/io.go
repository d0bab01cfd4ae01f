// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package rb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/frombs/rbeval/param"
)

// Offline data snapshot layout: one directory of CBOR records. The metadata
// record carries a magic, a schema version, a capability tag for subclass
// extension blocks, and a section presence mask; everything else is sized
// and validated against it before any in-memory state is touched.
const (
	offlineMagic   = "RBEV"
	offlineVersion = 1

	// extensionCore tags the fixed core schema. Evaluations persisting
	// extra blocks use their own tag; the core reader rejects tags it does
	// not know rather than silently dropping data.
	extensionCore = "core"
)

// section bits of the metadata presence mask
const (
	secInnerProduct = iota
	secGreedyParams
	secRepresentorNorms
	secOutputDualNorms
)

const (
	fileMetadata        = "metadata.cbor"
	fileGreedyParams    = "greedy_params.cbor"
	fileInnerProduct    = "inner_product.cbor"
	fileOperators       = "operators.cbor"
	fileResidualNorms   = "residual_norms.cbor"
	fileOutputDualNorms = "output_dual_norms.cbor"
)

type metadataRecord struct {
	Magic     string         `cbor:"magic"`
	Version   int            `cbor:"version"`
	Extension string         `cbor:"extension"`
	Sections  *bitset.BitSet `cbor:"sections"`

	NMax     int   `cbor:"nmax"`
	N        int   `cbor:"n"` // current number of basis functions
	QA       int   `cbor:"qa"`
	QF       int   `cbor:"qf"`
	QL       []int `cbor:"ql"`
	ParamDim int   `cbor:"paramDim"`
}

type matrixRecord struct {
	Rows int       `cbor:"rows"`
	Cols int       `cbor:"cols"`
	Data []float64 `cbor:"data"`
}

type vectorRecord struct {
	Len  int       `cbor:"len"`
	Data []float64 `cbor:"data"`
}

type operatorsRecord struct {
	AQ      []matrixRecord   `cbor:"aq"`
	FQ      []vectorRecord   `cbor:"fq"`
	Outputs [][]vectorRecord `cbor:"outputs"`
}

type residualNormsRecord struct {
	Fq   []float64     `cbor:"fq"`
	FqAq [][][]float64 `cbor:"fqAq"`
	AqAq [][][]float64 `cbor:"aqAq"`
}

// WriteOfflineData writes the snapshot that decouples the offline stage from
// online evaluation sessions: metadata, greedy parameter list, inner product
// matrix, projected operators and the representor norm tensors. The basis
// function vectors are persisted separately by WriteBasisFunctions since
// they dominate storage and are not needed for operator-only deployments.
func (e *Evaluation) WriteOfflineData(dir string) error {
	start := time.Now()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("rb: create offline data directory: %w", err)
	}

	sections := bitset.New(4)
	if e.InnerProduct != nil {
		sections.Set(secInnerProduct)
	}
	if len(e.GreedyParams) > 0 {
		sections.Set(secGreedyParams)
	}
	if len(e.FqNorms) > 0 || len(e.AqAqNorms) > 0 {
		sections.Set(secRepresentorNorms)
	}
	if len(e.OutputDualNorms) > 0 {
		sections.Set(secOutputDualNorms)
	}

	paramDim := 0
	if len(e.GreedyParams) > 0 {
		paramDim = len(e.GreedyParams[0])
	}
	meta := metadataRecord{
		Magic:     offlineMagic,
		Version:   offlineVersion,
		Extension: extensionCore,
		Sections:  sections,
		NMax:      e.nmax,
		N:         e.NbBasisFunctions(),
		QA:        e.qa,
		QF:        e.qf,
		QL:        e.ql,
		ParamDim:  paramDim,
	}

	ops := operatorsRecord{
		AQ:      make([]matrixRecord, len(e.AQ)),
		FQ:      make([]vectorRecord, len(e.FQ)),
		Outputs: make([][]vectorRecord, len(e.OutputVectors)),
	}
	for q, m := range e.AQ {
		ops.AQ[q] = denseRecord(m)
	}
	for q, v := range e.FQ {
		ops.FQ[q] = vecRecord(v)
	}
	for n, vs := range e.OutputVectors {
		ops.Outputs[n] = make([]vectorRecord, len(vs))
		for q, v := range vs {
			ops.Outputs[n][q] = vecRecord(v)
		}
	}

	var g errgroup.Group
	g.Go(func() error { return writeRecord(filepath.Join(dir, fileMetadata), meta) })
	g.Go(func() error { return writeRecord(filepath.Join(dir, fileOperators), ops) })
	if sections.Test(secGreedyParams) {
		g.Go(func() error { return writeRecord(filepath.Join(dir, fileGreedyParams), e.GreedyParams) })
	}
	if sections.Test(secInnerProduct) {
		g.Go(func() error { return writeRecord(filepath.Join(dir, fileInnerProduct), denseRecord(e.InnerProduct)) })
	}
	if sections.Test(secRepresentorNorms) {
		g.Go(func() error {
			return writeRecord(filepath.Join(dir, fileResidualNorms), residualNormsRecord{
				Fq:   e.FqNorms,
				FqAq: e.FqAqNorms,
				AqAq: e.AqAqNorms,
			})
		})
	}
	if sections.Test(secOutputDualNorms) {
		g.Go(func() error { return writeRecord(filepath.Join(dir, fileOutputDualNorms), e.OutputDualNorms) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.log.Debug().Str("dir", dir).Dur("took", time.Since(start)).Msg("wrote offline data")
	return nil
}

// ReadOfflineData loads a snapshot written by WriteOfflineData into e. The
// load is all-or-nothing: every record is decoded and validated against the
// metadata dimensions first, and the in-memory state is replaced only when
// the whole snapshot is consistent. Dimension mismatches are reported as
// ErrCorruptData naming the offending record.
func (e *Evaluation) ReadOfflineData(dir string) error {
	start := time.Now()

	var meta metadataRecord
	if err := readRecord(filepath.Join(dir, fileMetadata), &meta); err != nil {
		return err
	}
	if meta.Magic != offlineMagic {
		return fmt.Errorf("%w: %s: bad magic %q", ErrCorruptData, fileMetadata, meta.Magic)
	}
	if meta.Version != offlineVersion {
		return fmt.Errorf("%w: %s: unsupported version %d (want %d)", ErrCorruptData, fileMetadata, meta.Version, offlineVersion)
	}
	if meta.Extension != extensionCore {
		return fmt.Errorf("%w: %s: unknown extension tag %q", ErrCorruptData, fileMetadata, meta.Extension)
	}
	if meta.NMax < 0 || meta.N < 0 || meta.N > meta.NMax || meta.QA < 0 || meta.QF < 0 {
		return fmt.Errorf("%w: %s: inconsistent sizes nmax=%d n=%d qa=%d qf=%d", ErrCorruptData, fileMetadata, meta.NMax, meta.N, meta.QA, meta.QF)
	}
	if meta.Sections == nil {
		meta.Sections = bitset.New(4)
	}
	if e.expansion != nil {
		nOut := e.expansion.NbOutputs()
		if e.expansion.QA() != meta.QA || e.expansion.QF() != meta.QF || nOut != len(meta.QL) {
			return fmt.Errorf("%w: %s: snapshot QA=%d QF=%d outputs=%d does not match expansion QA=%d QF=%d outputs=%d",
				ErrCorruptData, fileMetadata, meta.QA, meta.QF, len(meta.QL), e.expansion.QA(), e.expansion.QF(), nOut)
		}
	}

	var (
		ops         operatorsRecord
		greedy      []param.Vector
		inner       matrixRecord
		norms       residualNormsRecord
		outputNorms [][]float64
	)
	var g errgroup.Group
	g.Go(func() error { return readRecord(filepath.Join(dir, fileOperators), &ops) })
	if meta.Sections.Test(secGreedyParams) {
		g.Go(func() error { return readRecord(filepath.Join(dir, fileGreedyParams), &greedy) })
	}
	if meta.Sections.Test(secInnerProduct) {
		g.Go(func() error { return readRecord(filepath.Join(dir, fileInnerProduct), &inner) })
	}
	if meta.Sections.Test(secRepresentorNorms) {
		g.Go(func() error { return readRecord(filepath.Join(dir, fileResidualNorms), &norms) })
	}
	if meta.Sections.Test(secOutputDualNorms) {
		g.Go(func() error { return readRecord(filepath.Join(dir, fileOutputDualNorms), &outputNorms) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	staging, err := buildStaging(meta, ops, greedy, inner, norms, outputNorms)
	if err != nil {
		return err
	}

	// the snapshot is consistent; commit
	e.BasisFunctions = make([]*mat.VecDense, meta.N)
	e.GreedyParams = staging.greedy
	e.InnerProduct = staging.inner
	e.AQ = staging.aq
	e.FQ = staging.fq
	e.OutputVectors = staging.outputs
	e.FqNorms = staging.fqNorms
	e.FqAqNorms = staging.fqAqNorms
	e.AqAqNorms = staging.aqAqNorms
	e.OutputDualNorms = staging.outputDualNorms
	e.AqRepresentors = nil
	e.nmax, e.qa, e.qf, e.ql = meta.NMax, meta.QA, meta.QF, meta.QL
	e.solution, e.outputs, e.outputBounds = nil, nil, nil

	e.log.Debug().Str("dir", dir).Int("nmax", meta.NMax).Int("n", meta.N).Dur("took", time.Since(start)).Msg("read offline data")
	return nil
}

// SnapshotInfo summarizes the metadata record of an offline data directory
// without loading the tensors. Used by tooling.
type SnapshotInfo struct {
	Version   int
	Extension string

	NMax     int
	N        int
	QA       int
	QF       int
	QL       []int
	ParamDim int

	HasInnerProduct     bool
	HasGreedyParams     bool
	HasRepresentorNorms bool
	HasOutputDualNorms  bool
}

// ReadSnapshotInfo reads and validates the metadata record under dir.
func ReadSnapshotInfo(dir string) (SnapshotInfo, error) {
	var meta metadataRecord
	if err := readRecord(filepath.Join(dir, fileMetadata), &meta); err != nil {
		return SnapshotInfo{}, err
	}
	if meta.Magic != offlineMagic {
		return SnapshotInfo{}, fmt.Errorf("%w: %s: bad magic %q", ErrCorruptData, fileMetadata, meta.Magic)
	}
	if meta.Sections == nil {
		meta.Sections = bitset.New(4)
	}
	return SnapshotInfo{
		Version:             meta.Version,
		Extension:           meta.Extension,
		NMax:                meta.NMax,
		N:                   meta.N,
		QA:                  meta.QA,
		QF:                  meta.QF,
		QL:                  meta.QL,
		ParamDim:            meta.ParamDim,
		HasInnerProduct:     meta.Sections.Test(secInnerProduct),
		HasGreedyParams:     meta.Sections.Test(secGreedyParams),
		HasRepresentorNorms: meta.Sections.Test(secRepresentorNorms),
		HasOutputDualNorms:  meta.Sections.Test(secOutputDualNorms),
	}, nil
}

type stagingData struct {
	greedy          []param.Vector
	inner           *mat.Dense
	aq              []*mat.Dense
	fq              []*mat.VecDense
	outputs         [][]*mat.VecDense
	fqNorms         []float64
	fqAqNorms       [][][]float64
	aqAqNorms       [][][]float64
	outputDualNorms [][]float64
}

func buildStaging(meta metadataRecord, ops operatorsRecord, greedy []param.Vector, inner matrixRecord, norms residualNormsRecord, outputNorms [][]float64) (*stagingData, error) {
	s := &stagingData{}

	if len(ops.AQ) != meta.QA {
		return nil, fmt.Errorf("%w: %s: have %d A_q matrices, metadata says QA=%d", ErrCorruptData, fileOperators, len(ops.AQ), meta.QA)
	}
	s.aq = make([]*mat.Dense, meta.QA)
	for q, rec := range ops.AQ {
		m, err := rec.dense()
		if err != nil || rec.Rows != meta.NMax || rec.Cols != meta.NMax {
			return nil, fmt.Errorf("%w: %s: A_q[%d] is %dx%d, want %dx%d", ErrCorruptData, fileOperators, q, rec.Rows, rec.Cols, meta.NMax, meta.NMax)
		}
		s.aq[q] = m
	}
	if len(ops.FQ) != meta.QF {
		return nil, fmt.Errorf("%w: %s: have %d F_q vectors, metadata says QF=%d", ErrCorruptData, fileOperators, len(ops.FQ), meta.QF)
	}
	s.fq = make([]*mat.VecDense, meta.QF)
	for q, rec := range ops.FQ {
		v, err := rec.vec()
		if err != nil || rec.Len != meta.NMax {
			return nil, fmt.Errorf("%w: %s: F_q[%d] has length %d, want %d", ErrCorruptData, fileOperators, q, rec.Len, meta.NMax)
		}
		s.fq[q] = v
	}
	if len(ops.Outputs) != len(meta.QL) {
		return nil, fmt.Errorf("%w: %s: have %d outputs, metadata says %d", ErrCorruptData, fileOperators, len(ops.Outputs), len(meta.QL))
	}
	s.outputs = make([][]*mat.VecDense, len(meta.QL))
	for n, vs := range ops.Outputs {
		if len(vs) != meta.QL[n] {
			return nil, fmt.Errorf("%w: %s: output %d has %d terms, metadata says QL=%d", ErrCorruptData, fileOperators, n, len(vs), meta.QL[n])
		}
		s.outputs[n] = make([]*mat.VecDense, len(vs))
		for q, rec := range vs {
			v, err := rec.vec()
			if err != nil || rec.Len != meta.NMax {
				return nil, fmt.Errorf("%w: %s: output %d term %d has length %d, want %d", ErrCorruptData, fileOperators, n, q, rec.Len, meta.NMax)
			}
			s.outputs[n][q] = v
		}
	}

	if meta.Sections.Test(secGreedyParams) {
		if len(greedy) != meta.N {
			return nil, fmt.Errorf("%w: %s: %d parameters for %d basis functions", ErrCorruptData, fileGreedyParams, len(greedy), meta.N)
		}
		for i, mu := range greedy {
			if len(mu) != meta.ParamDim {
				return nil, fmt.Errorf("%w: %s: entry %d has dimension %d, want %d", ErrCorruptData, fileGreedyParams, i, len(mu), meta.ParamDim)
			}
		}
		s.greedy = greedy
	}

	if meta.Sections.Test(secInnerProduct) {
		m, err := inner.dense()
		if err != nil || inner.Rows != meta.NMax || inner.Cols != meta.NMax {
			return nil, fmt.Errorf("%w: %s: matrix is %dx%d, want %dx%d", ErrCorruptData, fileInnerProduct, inner.Rows, inner.Cols, meta.NMax, meta.NMax)
		}
		s.inner = m
	}

	if meta.Sections.Test(secRepresentorNorms) {
		if len(norms.Fq) != packedLen(meta.QF) {
			return nil, fmt.Errorf("%w: %s: Fq norms have length %d, want %d", ErrCorruptData, fileResidualNorms, len(norms.Fq), packedLen(meta.QF))
		}
		if len(norms.FqAq) != meta.QF {
			return nil, fmt.Errorf("%w: %s: FqAq norms have %d F terms, want %d", ErrCorruptData, fileResidualNorms, len(norms.FqAq), meta.QF)
		}
		for qf := range norms.FqAq {
			if len(norms.FqAq[qf]) != meta.QA {
				return nil, fmt.Errorf("%w: %s: FqAq[%d] has %d A terms, want %d", ErrCorruptData, fileResidualNorms, qf, len(norms.FqAq[qf]), meta.QA)
			}
			for qa := range norms.FqAq[qf] {
				if len(norms.FqAq[qf][qa]) != meta.NMax {
					return nil, fmt.Errorf("%w: %s: FqAq[%d][%d] has length %d, want %d", ErrCorruptData, fileResidualNorms, qf, qa, len(norms.FqAq[qf][qa]), meta.NMax)
				}
			}
		}
		if len(norms.AqAq) != packedLen(meta.QA) {
			return nil, fmt.Errorf("%w: %s: AqAq norms have %d term pairs, want %d", ErrCorruptData, fileResidualNorms, len(norms.AqAq), packedLen(meta.QA))
		}
		for p := range norms.AqAq {
			if len(norms.AqAq[p]) != meta.NMax {
				return nil, fmt.Errorf("%w: %s: AqAq[%d] has %d rows, want %d", ErrCorruptData, fileResidualNorms, p, len(norms.AqAq[p]), meta.NMax)
			}
			for i := range norms.AqAq[p] {
				if len(norms.AqAq[p][i]) != meta.NMax {
					return nil, fmt.Errorf("%w: %s: AqAq[%d][%d] has length %d, want %d", ErrCorruptData, fileResidualNorms, p, i, len(norms.AqAq[p][i]), meta.NMax)
				}
			}
		}
		s.fqNorms = norms.Fq
		s.fqAqNorms = norms.FqAq
		s.aqAqNorms = norms.AqAq
	}

	if meta.Sections.Test(secOutputDualNorms) {
		if len(outputNorms) != len(meta.QL) {
			return nil, fmt.Errorf("%w: %s: have %d outputs, metadata says %d", ErrCorruptData, fileOutputDualNorms, len(outputNorms), len(meta.QL))
		}
		for n := range outputNorms {
			if len(outputNorms[n]) != packedLen(meta.QL[n]) {
				return nil, fmt.Errorf("%w: %s: output %d has %d norm pairs, want %d", ErrCorruptData, fileOutputDualNorms, n, len(outputNorms[n]), packedLen(meta.QL[n]))
			}
		}
		s.outputDualNorms = outputNorms
	}

	return s, nil
}

func writeRecord(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rb: write %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := cbor.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("rb: encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func readRecord(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: missing record %s", ErrCorruptData, filepath.Base(path))
		}
		return fmt.Errorf("rb: read %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := cbor.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrCorruptData, filepath.Base(path), err)
	}
	return nil
}

func denseRecord(m *mat.Dense) matrixRecord {
	if m == nil {
		return matrixRecord{}
	}
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return matrixRecord{Rows: r, Cols: c, Data: data}
}

func (rec matrixRecord) dense() (*mat.Dense, error) {
	if rec.Rows <= 0 || rec.Cols <= 0 || len(rec.Data) != rec.Rows*rec.Cols {
		return nil, fmt.Errorf("matrix record %dx%d with %d values", rec.Rows, rec.Cols, len(rec.Data))
	}
	return mat.NewDense(rec.Rows, rec.Cols, rec.Data), nil
}

func vecRecord(v *mat.VecDense) vectorRecord {
	if v == nil {
		return vectorRecord{}
	}
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return vectorRecord{Len: v.Len(), Data: data}
}

func (rec vectorRecord) vec() (*mat.VecDense, error) {
	if rec.Len <= 0 || len(rec.Data) != rec.Len {
		return nil, fmt.Errorf("vector record of length %d with %d values", rec.Len, len(rec.Data))
	}
	return mat.NewVecDense(rec.Len, rec.Data), nil
}
