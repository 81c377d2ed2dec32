package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TrainingExample is one labeled command for model training.
type TrainingExample struct {
	Text   string `json:"text"`
	Intent Type   `json:"intent"`
}

// bayesModel is a multinomial naive Bayes classifier over TF-IDF
// weighted unigram and bigram features. The fitted model persists as
// JSON so training survives restarts.
type bayesModel struct {
	mu   sync.RWMutex
	path string
	fit  *bayesFit
}

type bayesFit struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
	Classes    []Type         `json:"classes"`
	LogPriors  []float64      `json:"log_priors"`
	// LogLikelihoods[class][term] is log P(term|class) with Laplace
	// smoothing over the TF-IDF mass.
	LogLikelihoods [][]float64 `json:"log_likelihoods"`
}

func newBayesModel(path string) *bayesModel {
	return &bayesModel{path: path}
}

func (m *bayesModel) trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fit != nil
}

// tokenize produces unigram and bigram terms.
func tokenize(text string) []string {
	words := strings.Fields(text)
	terms := make([]string, 0, len(words)*2)
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}

func (m *bayesModel) train(examples []TrainingExample) error {
	if len(examples) == 0 {
		return errors.New("no training examples")
	}

	// Build vocabulary and document frequencies.
	vocab := make(map[string]int)
	docFreq := make(map[int]int)
	docs := make([][]string, len(examples))
	for i, ex := range examples {
		terms := tokenize(preprocess(ex.Text))
		docs[i] = terms
		seen := make(map[int]bool)
		for _, term := range terms {
			idx, ok := vocab[term]
			if !ok {
				idx = len(vocab)
				vocab[term] = idx
			}
			if !seen[idx] {
				docFreq[idx]++
				seen[idx] = true
			}
		}
	}

	n := float64(len(examples))
	idf := make([]float64, len(vocab))
	for idx, df := range docFreq {
		idf[idx] = math.Log((1+n)/(1+float64(df))) + 1
	}

	// Accumulate TF-IDF mass per class.
	classIndex := make(map[Type]int)
	var classes []Type
	classCounts := make(map[Type]int)
	for _, ex := range examples {
		if _, ok := classIndex[ex.Intent]; !ok {
			classIndex[ex.Intent] = len(classes)
			classes = append(classes, ex.Intent)
		}
		classCounts[ex.Intent]++
	}

	featureMass := make([][]float64, len(classes))
	for i := range featureMass {
		featureMass[i] = make([]float64, len(vocab))
	}
	for i, ex := range examples {
		ci := classIndex[ex.Intent]
		tf := make(map[int]float64)
		for _, term := range docs[i] {
			tf[vocab[term]]++
		}
		for idx, count := range tf {
			featureMass[ci][idx] += count * idf[idx]
		}
	}

	const alpha = 1.0
	fit := &bayesFit{
		Vocabulary:     vocab,
		IDF:            idf,
		Classes:        classes,
		LogPriors:      make([]float64, len(classes)),
		LogLikelihoods: make([][]float64, len(classes)),
	}
	for ci, class := range classes {
		fit.LogPriors[ci] = math.Log(float64(classCounts[class]) / n)

		total := 0.0
		for _, mass := range featureMass[ci] {
			total += mass
		}
		denom := total + alpha*float64(len(vocab))

		likes := make([]float64, len(vocab))
		for idx, mass := range featureMass[ci] {
			likes[idx] = math.Log((mass + alpha) / denom)
		}
		fit.LogLikelihoods[ci] = likes
	}

	m.mu.Lock()
	m.fit = fit
	m.mu.Unlock()
	return m.save()
}

// classify returns the most probable class and its posterior
// probability.
func (m *bayesModel) classify(text string) (Type, float64) {
	m.mu.RLock()
	fit := m.fit
	m.mu.RUnlock()
	if fit == nil {
		return Unknown, 0
	}

	tf := make(map[int]float64)
	for _, term := range tokenize(text) {
		if idx, ok := fit.Vocabulary[term]; ok {
			tf[idx]++
		}
	}
	if len(tf) == 0 {
		return Unknown, 0
	}

	logJoint := make([]float64, len(fit.Classes))
	for ci := range fit.Classes {
		lj := fit.LogPriors[ci]
		for idx, count := range tf {
			lj += count * fit.IDF[idx] * fit.LogLikelihoods[ci][idx]
		}
		logJoint[ci] = lj
	}

	// Softmax over the log-joints for a posterior.
	maxLJ := logJoint[0]
	for _, lj := range logJoint[1:] {
		if lj > maxLJ {
			maxLJ = lj
		}
	}
	var norm float64
	probs := make([]float64, len(logJoint))
	for i, lj := range logJoint {
		probs[i] = math.Exp(lj - maxLJ)
		norm += probs[i]
	}

	best, bestProb := 0, 0.0
	for i, p := range probs {
		p /= norm
		if p > bestProb {
			best, bestProb = i, p
		}
	}
	return fit.Classes[best], bestProb
}

func (m *bayesModel) save() error {
	if m.path == "" {
		return nil
	}
	m.mu.RLock()
	data, err := json.Marshal(m.fit)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}
	return os.WriteFile(m.path, data, 0o644)
}

func (m *bayesModel) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fit bayesFit
	if err := json.Unmarshal(data, &fit); err != nil {
		return fmt.Errorf("parse model %s: %w", m.path, err)
	}
	m.mu.Lock()
	m.fit = &fit
	m.mu.Unlock()
	return nil
}
