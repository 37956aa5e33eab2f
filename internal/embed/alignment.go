// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embed

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Alignment is a precomputed linear map from premium embedding space into
// local embedding space, fit by least squares over a sample of
// (local_vec, premium_vec) pairs collected during ingestion.
//
// Grounded on original_source's hybrid_embedder.py _fit_alignment_matrix:
// solve local = premium @ M for M, falling back to the Moore-Penrose
// pseudoinverse when premium and local dimensions differ (the normal
// equations become rank-deficient or non-square).
type Alignment struct {
	// M has shape (premiumDim, localDim): Apply computes premiumVec * M.
	M *mat.Dense

	premiumDim int
	localDim   int
}

// FitAlignment fits M such that localVecs[i] ~= premiumVecs[i] * M, via
// ordinary least squares. When the normal equations are singular (common
// when premiumDim != localDim, or the sample is small and rank-deficient),
// it falls back to a Moore-Penrose pseudoinverse solve.
func FitAlignment(localVecs, premiumVecs [][]float32) (*Alignment, error) {
	n := len(localVecs)
	if n == 0 || n != len(premiumVecs) {
		return nil, fmt.Errorf("alignment fit: need matched non-empty local/premium samples, got %d/%d", len(localVecs), len(premiumVecs))
	}

	localDim := len(localVecs[0])
	premiumDim := len(premiumVecs[0])

	P := mat.NewDense(n, premiumDim, nil)
	L := mat.NewDense(n, localDim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < premiumDim; j++ {
			P.Set(i, j, float64(premiumVecs[i][j]))
		}
		for j := 0; j < localDim; j++ {
			L.Set(i, j, float64(localVecs[i][j]))
		}
	}

	var M mat.Dense
	if err := M.Solve(P, L); err != nil {
		pinv, pinvErr := pseudoInverse(P)
		if pinvErr != nil {
			return nil, fmt.Errorf("alignment fit: normal equations singular and pseudoinverse failed: %w", pinvErr)
		}
		M.Mul(pinv, L)
	}

	return &Alignment{M: &M, premiumDim: premiumDim, localDim: localDim}, nil
}

// pseudoInverse computes the Moore-Penrose pseudoinverse of A via its SVD,
// the standard fallback when a least-squares system has no unique solution.
func pseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	r, _ := u.Dims()
	c, _ := v.Dims()

	sInv := mat.NewDense(len(values), len(values), nil)
	const tol = 1e-10
	for i, s := range values {
		if s > tol {
			sInv.Set(i, i, 1/s)
		}
	}

	var tmp mat.Dense
	tmp.Mul(&v, sInv)

	var pinv mat.Dense
	pinv.Mul(&tmp, u.T())

	_ = r
	_ = c
	return &pinv, nil
}

// Apply maps a premium-space vector into local space.
func (a *Alignment) Apply(premiumVec []float32) []float32 {
	if a == nil || a.M == nil {
		return premiumVec
	}

	pr := mat.NewDense(1, len(premiumVec), nil)
	for j, v := range premiumVec {
		pr.Set(0, j, float64(v))
	}

	var out mat.Dense
	out.Mul(pr, a.M)

	_, cols := out.Dims()
	result := make([]float32, cols)
	for j := 0; j < cols; j++ {
		result[j] = float32(out.At(0, j))
	}
	return result
}

// Save persists the alignment matrix in a small binary format: premiumDim,
// localDim (uint32 each), then premiumDim*localDim float64 values.
func (a *Alignment) Save(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(a.premiumDim)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(a.localDim)); err != nil {
		return err
	}
	for i := 0; i < a.premiumDim; i++ {
		for j := 0; j < a.localDim; j++ {
			if err := binary.Write(w, binary.LittleEndian, a.M.At(i, j)); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadAlignmentFile reads a matrix previously written by Save.
func LoadAlignmentFile(path string) (*Alignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var premiumDim, localDim uint32
	if err := binary.Read(f, binary.LittleEndian, &premiumDim); err != nil {
		return nil, fmt.Errorf("read alignment header: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &localDim); err != nil {
		return nil, fmt.Errorf("read alignment header: %w", err)
	}

	m := mat.NewDense(int(premiumDim), int(localDim), nil)
	for i := 0; i < int(premiumDim); i++ {
		for j := 0; j < int(localDim); j++ {
			var v float64
			if err := binary.Read(f, binary.LittleEndian, &v); err != nil {
				return nil, fmt.Errorf("read alignment values: %w", err)
			}
			m.Set(i, j, v)
		}
	}

	return &Alignment{M: m, premiumDim: int(premiumDim), localDim: int(localDim)}, nil
}

// ResidualNorm reports the Frobenius norm of (P*M - L), useful for logging
// fit quality; not used on the hot path.
func ResidualNorm(a *Alignment, localVecs, premiumVecs [][]float32) float64 {
	var sum float64
	for i := range localVecs {
		mapped := a.Apply(premiumVecs[i])
		for j := range mapped {
			d := float64(mapped[j]) - float64(localVecs[i][j])
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}
