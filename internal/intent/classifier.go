package intent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Ensemble weights per classification method. The trained model only
// contributes once training data has been supplied.
const (
	keywordWeight = 0.4
	modelWeight   = 0.4
	patternWeight = 0.2
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	specialsRe   = regexp.MustCompile(`[^\w\s@#%&*+\-=<>/\\]`)
)

// patternSets holds the per-intent regular expressions for the
// pattern-based method.
var patternSets = map[Type][]*regexp.Regexp{
	AudioControl: {
		regexp.MustCompile(`\b(play|pause|stop|volume|mute|unmute)\b`),
		regexp.MustCompile(`\b(music|song|track|audio|sound)\b`),
		regexp.MustCompile(`\b(headphones|speakers|bluetooth)\b`),
	},
	SystemControl: {
		regexp.MustCompile(`\b(open|close|launch|run|start|stop|kill)\b`),
		regexp.MustCompile(`\b(application|app|program|software)\b`),
		regexp.MustCompile(`\b(shutdown|restart|reboot)\b`),
	},
	SmartHome: {
		regexp.MustCompile(`\b(lights?|lamp|bulb|brightness|dim)\b`),
		regexp.MustCompile(`\b(temperature|thermostat|heating|cooling)\b`),
		regexp.MustCompile(`\b(lock|unlock|door|window|security)\b`),
	},
	Communication: {
		regexp.MustCompile(`\b(send|message|text|call|phone|email)\b`),
		regexp.MustCompile(`\b(whatsapp|telegram|slack|discord)\b`),
		regexp.MustCompile(`\b(contact|person|friend|family)\b`),
	},
	Navigation: {
		regexp.MustCompile(`\b(directions?|navigate|route|map|location)\b`),
		regexp.MustCompile(`\b(drive|walk|travel|destination|gps)\b`),
		regexp.MustCompile(`\b(distance|time|eta|waypoint)\b`),
	},
	Information: {
		regexp.MustCompile(`\b(what|how|why|when|where|who|tell|explain)\b`),
		regexp.MustCompile(`\b(weather|time|date|news|search|find)\b`),
		regexp.MustCompile(`\b(help|information|question)\b`),
	},
	FileOperation: {
		regexp.MustCompile(`\b(download|upload|copy|move|delete|create|save)\b`),
		regexp.MustCompile(`\b(file|document|folder|directory|path|url)\b`),
		regexp.MustCompile(`\b(backup|sync|share|export|import)\b`),
	},
	HardwareControl: {
		regexp.MustCompile(`\b(gpio|pin|sensor|led|relay|pwm|analog|digital)\b`),
		regexp.MustCompile(`\b(hardware|device|component|circuit|board)\b`),
		regexp.MustCompile(`\b(arduino|raspberry|pi|microcontroller)\b`),
	},
}

// Classifier scores commands against intent schemas using a weighted
// ensemble of keyword matching, a trainable text model, and pattern
// matching.
type Classifier struct {
	schemas map[Type]Schema
	model   *bayesModel
	logger  zerolog.Logger
}

// NewClassifier creates a classifier with the built-in schemas. When
// modelPath is non-empty, a previously trained model is loaded from it
// and future training runs persist there.
func NewClassifier(logger zerolog.Logger, modelPath string) *Classifier {
	c := &Classifier{
		schemas: Schemas(),
		model:   newBayesModel(modelPath),
		logger:  logger.With().Str("component", "intent-classifier").Logger(),
	}
	if modelPath != "" {
		if err := c.model.load(); err != nil {
			c.logger.Warn().Err(err).Str("path", modelPath).Msg("no trained model loaded")
		}
	}
	return c
}

// Schema returns the schema for one intent.
func (c *Classifier) Schema(t Type) (Schema, bool) {
	s, ok := c.schemas[t]
	return s, ok
}

// AllSchemas returns every schema sorted by intent name.
func (c *Classifier) AllSchemas() []Schema {
	out := make([]Schema, 0, len(c.schemas))
	for _, s := range c.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Intent < out[j].Intent })
	return out
}

// Classify scores text against all intents and returns the winner, its
// ensemble confidence, and up to three runners-up. Parameters are
// extracted for the winning intent.
func (c *Classifier) Classify(text string) Result {
	processed := preprocess(text)

	scores := make(map[Type]float64)
	add := func(t Type, score, weight float64) {
		if t == Unknown || score <= 0 {
			return
		}
		scores[t] += score * weight
	}

	kwIntent, kwScore := c.classifyByKeywords(processed)
	add(kwIntent, kwScore, keywordWeight)

	if c.model.trained() {
		mlIntent, mlScore := c.model.classify(processed)
		add(mlIntent, mlScore, modelWeight)
	}

	patIntent, patScore := classifyByPatterns(processed)
	add(patIntent, patScore, patternWeight)

	if len(scores) == 0 {
		return Result{Intent: Unknown, Confidence: 0}
	}

	type scored struct {
		intent Type
		score  float64
	}
	ranked := make([]scored, 0, len(scores))
	for t, s := range scores {
		ranked = append(ranked, scored{t, s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].intent < ranked[j].intent
	})

	res := Result{
		Intent:     ranked[0].intent,
		Confidence: ranked[0].score,
	}
	for _, alt := range ranked[1:] {
		if len(res.Alternatives) == 3 {
			break
		}
		res.Alternatives = append(res.Alternatives, Alternative{Intent: alt.intent, Score: alt.score})
	}
	res.Parameters = ExtractParameters(processed, res.Intent)
	return res
}

// Train fits the text model on (text, intent) pairs and persists it.
func (c *Classifier) Train(examples []TrainingExample) error {
	if err := c.model.train(examples); err != nil {
		return err
	}
	c.logger.Info().Int("examples", len(examples)).Msg("intent model trained")
	return nil
}

// Trained reports whether the text model contributes to the ensemble.
func (c *Classifier) Trained() bool { return c.model.trained() }

func preprocess(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = whitespaceRe.ReplaceAllString(text, " ")
	return specialsRe.ReplaceAllString(text, "")
}

// classifyByKeywords scores each intent by the fraction of its
// keywords present in the text.
func (c *Classifier) classifyByKeywords(text string) (Type, float64) {
	best := Unknown
	bestScore := 0.0

	for t, schema := range c.schemas {
		if len(schema.Keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range schema.Keywords {
			if strings.Contains(text, kw) {
				matches++
			}
		}
		score := float64(matches) / float64(len(schema.Keywords))
		if score > bestScore || (score == bestScore && score > 0 && t < best) {
			best = t
			bestScore = score
		}
	}

	if bestScore == 0 {
		return Unknown, 0
	}
	return best, bestScore
}

// classifyByPatterns scores each intent by regex hits normalized to
// the pattern count, clamped to 1.
func classifyByPatterns(text string) (Type, float64) {
	best := Unknown
	bestScore := 0.0

	for t, patterns := range patternSets {
		hits := 0
		for _, p := range patterns {
			hits += len(p.FindAllString(text, -1))
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(patterns))
		if score > 1 {
			score = 1
		}
		if score > bestScore || (score == bestScore && t < best) {
			best = t
			bestScore = score
		}
	}

	if bestScore == 0 {
		return Unknown, 0
	}
	return best, bestScore
}
