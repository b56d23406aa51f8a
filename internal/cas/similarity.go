package cas

import (
	"math"
	"sort"
	"sync"
)

// SimilarityIndex maintains an in-memory approximate-similarity index over
// stored objects. Each object is summarized by a 256-bucket byte histogram
// normalized to a unit vector; similarity between two objects is the cosine
// of their signatures. The index is advisory only (discovery, not identity)
// and is rebuilt from scratch on process start by re-adding objects.
type SimilarityIndex struct {
	mu         sync.RWMutex
	signatures map[string][256]float64
}

// Match is a single similarity result.
type Match struct {
	Hash       string  `json:"hash"`
	Similarity float64 `json:"similarity"`
}

// NewSimilarityIndex creates an empty similarity index.
func NewSimilarityIndex() *SimilarityIndex {
	return &SimilarityIndex{
		signatures: make(map[string][256]float64),
	}
}

// signature computes the normalized byte-histogram signature for content.
func signature(content []byte) [256]float64 {
	var sig [256]float64
	for _, b := range content {
		sig[b]++
	}
	var norm float64
	for _, v := range sig {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range sig {
			sig[i] /= norm
		}
	}
	return sig
}

// Add records the signature for content under its hash.
func (idx *SimilarityIndex) Add(hash string, content []byte) {
	sig := signature(content)
	idx.mu.Lock()
	idx.signatures[hash] = sig
	idx.mu.Unlock()
}

// FindSimilar returns objects whose signature similarity to the given hash
// meets threshold, sorted by descending similarity. The queried object
// itself is excluded. Returns nil if the hash is not indexed.
func (idx *SimilarityIndex) FindSimilar(hash string, threshold float64) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	base, ok := idx.signatures[hash]
	if !ok {
		return nil
	}

	var matches []Match
	for other, sig := range idx.signatures {
		if other == hash {
			continue
		}
		sim := cosine(base, sig)
		if sim >= threshold {
			matches = append(matches, Match{Hash: other, Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Hash < matches[j].Hash
	})
	return matches
}

// cosine computes the dot product of two unit vectors, clamped to [0,1].
func cosine(a, b [256]float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}
