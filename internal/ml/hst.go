package ml

import (
	"math"
	"math/rand"
)

// hsTree é uma half-space tree: árvore binária completa com cortes aleatórios
// sobre [0,1]^d e contadores de massa por nó, atualizados a cada observação.
// Duas janelas (referência/corrente) trocam a cada windowSize registros.
type hstNode struct {
	Dim   int     `json:"dim"` // -1 = folha
	Split float64 `json:"split"`
	Ref   float64 `json:"ref"`
	Cur   float64 `json:"cur"`
}

type hsTree struct {
	Depth int       `json:"depth"`
	Nodes []hstNode `json:"nodes"` // binária completa: filhos de i em 2i+1 e 2i+2
}

func newTree(rng *rand.Rand, depth int) *hsTree {
	t := &hsTree{Depth: depth, Nodes: make([]hstNode, (1<<(depth+1))-1)}
	mins := make([]float64, FeatureDim)
	maxs := make([]float64, FeatureDim)
	for i := range maxs {
		maxs[i] = 1
	}
	t.build(rng, 0, 0, mins, maxs)
	return t
}

func (t *hsTree) build(rng *rand.Rand, idx, depth int, mins, maxs []float64) {
	if depth == t.Depth {
		t.Nodes[idx].Dim = -1
		return
	}
	q := rng.Intn(FeatureDim)
	split := mins[q] + rng.Float64()*(maxs[q]-mins[q])
	t.Nodes[idx].Dim = q
	t.Nodes[idx].Split = split

	hi := maxs[q]
	maxs[q] = split
	t.build(rng, 2*idx+1, depth+1, mins, maxs)
	maxs[q] = hi

	lo := mins[q]
	mins[q] = split
	t.build(rng, 2*idx+2, depth+1, mins, maxs)
	mins[q] = lo
}

func (t *hsTree) leaf(f FeatureVector) int {
	idx := 0
	for t.Nodes[idx].Dim >= 0 {
		if f[t.Nodes[idx].Dim] < t.Nodes[idx].Split {
			idx = 2*idx + 1
		} else {
			idx = 2*idx + 2
		}
	}
	return idx
}

// Record incrementa a massa corrente ao longo do caminho raiz→folha.
func (t *hsTree) Record(f FeatureVector) {
	idx := 0
	for {
		t.Nodes[idx].Cur++
		if t.Nodes[idx].Dim < 0 {
			return
		}
		if f[t.Nodes[idx].Dim] < t.Nodes[idx].Split {
			idx = 2*idx + 1
		} else {
			idx = 2*idx + 2
		}
	}
}

// Swap promove a janela corrente a referência e zera a corrente.
func (t *hsTree) Swap() {
	for i := range t.Nodes {
		t.Nodes[i].Ref = t.Nodes[i].Cur
		t.Nodes[i].Cur = 0
	}
}

// mass devolve a massa de referência da folha (ou corrente, antes da 1ª troca).
func (t *hsTree) mass(f FeatureVector, swapped bool) float64 {
	n := t.Nodes[t.leaf(f)]
	if swapped {
		return n.Ref
	}
	return n.Cur
}

// scoreForest converte massa média escalada em score de anomalia [0,1];
// maior = mais anômalo, monótono na raridade do ponto.
func scoreForest(trees []*hsTree, f FeatureVector, swapped bool, windowSize int) float64 {
	if len(trees) == 0 || windowSize <= 0 {
		return 0
	}
	var total float64
	for _, t := range trees {
		total += t.mass(f, swapped) * math.Pow(2, float64(t.Depth))
	}
	avg := total / float64(len(trees))
	// ponto frequente: massa da folha ~ windowSize/2^depth → avg ~ windowSize
	norm := avg / float64(windowSize)
	return 1 - math.Min(1, norm)
}
