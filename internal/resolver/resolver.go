package resolver

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/docpair/internal/store"
)

// Resolver actions recorded in the normalization log.
const (
	ActionAutoMatch = "auto_match"
	ActionReview    = "review"
	ActionNew       = "new"
	ActionUnmatched = "unmatched"
)

// Directory is the supplier-side store surface the resolver needs.
type Directory interface {
	Suppliers(ctx context.Context) ([]store.Supplier, error)
	CreateSupplier(ctx context.Context, name, normalized string, aliases []string) (string, error)
	EnqueueAliasReview(ctx context.Context, original, suggested string, supplierID *string, confidence float64) error
	LogNormalization(ctx context.Context, entry store.NormalizationEntry) error
}

// Embedder produces a vector for a name. Optional; when present it rescues
// borderline lexical scores via cosine similarity.
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// Result is one resolution outcome. SupplierID is set for matched and
// new_supplier; CandidateID carries the uncommitted suggestion for the
// review band.
type Result struct {
	SupplierID   *string
	CandidateID  *string
	SupplierName string
	Confidence   float64
	Action       string
}

// Resolver maps raw supplier strings from documents onto the canonical
// directory.
type Resolver struct {
	dir         Directory
	embedder    Embedder
	autoMatch   float64 // score at or above which the match is accepted
	reviewFloor float64 // score at or above which a review item is filed
	log         *logrus.Entry
}

// New builds a resolver with the given thresholds. embedder may be nil.
func New(dir Directory, embedder Embedder, autoMatch, reviewFloor float64, log *logrus.Entry) *Resolver {
	return &Resolver{
		dir:         dir,
		embedder:    embedder,
		autoMatch:   autoMatch,
		reviewFloor: reviewFloor,
		log:         log,
	}
}

// Resolve scores rawName against every canonical name and alias and applies
// the confidence tiers. It never returns an error: resolution failures must
// not block document intake, so store problems degrade to an unmatched
// result with a logged warning.
func (r *Resolver) Resolve(ctx context.Context, rawName string) Result {
	res := r.resolve(ctx, rawName)
	if err := r.dir.LogNormalization(ctx, store.NormalizationEntry{
		SupplierName: rawName,
		MatchedID:    res.SupplierID,
		Confidence:   res.Confidence,
		Action:       res.Action,
	}); err != nil {
		r.log.WithError(err).WithField("supplier", rawName).Warn("normalization log write failed")
	}
	return res
}

func (r *Resolver) resolve(ctx context.Context, rawName string) Result {
	if Normalize(rawName) == "" {
		return Result{Action: ActionUnmatched}
	}

	suppliers, err := r.dir.Suppliers(ctx)
	if err != nil {
		r.log.WithError(err).Warn("supplier directory unavailable, treating as unmatched")
		return Result{Action: ActionUnmatched}
	}

	var (
		best      *store.Supplier
		bestScore float64
	)
	for i := range suppliers {
		s := &suppliers[i]
		score := Similarity(rawName, s.Name)
		for _, alias := range s.Aliases {
			if a := Similarity(rawName, alias); a > score {
				score = a
			}
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}

	// The lexical score decides the tier, but inside the ambiguous band a
	// semantic backend gets a second opinion and the higher score wins.
	if best != nil && bestScore >= r.reviewFloor && bestScore < r.autoMatch && r.embedder != nil {
		if sem := r.embeddingScore(rawName, best.Name) * 100; sem > bestScore {
			bestScore = sem
		}
	}

	switch {
	case best != nil && bestScore >= r.autoMatch:
		id := best.ID
		return Result{
			SupplierID:   &id,
			SupplierName: best.Name,
			Confidence:   bestScore,
			Action:       ActionAutoMatch,
		}
	case best != nil && bestScore >= r.reviewFloor:
		id := best.ID
		if err := r.dir.EnqueueAliasReview(ctx, rawName, best.Name, &id, bestScore); err != nil {
			r.log.WithError(err).WithField("supplier", rawName).Warn("alias review enqueue failed")
		}
		return Result{
			CandidateID:  &id,
			SupplierName: best.Name,
			Confidence:   bestScore,
			Action:       ActionReview,
		}
	default:
		return r.createSupplier(ctx, rawName, bestScore)
	}
}

// createSupplier registers an unknown name as a new canonical supplier.
// Creation failures fall back to unmatched so intake continues.
func (r *Resolver) createSupplier(ctx context.Context, rawName string, score float64) Result {
	id, err := r.dir.CreateSupplier(ctx, rawName, Normalize(rawName), nil)
	if err != nil {
		r.log.WithError(err).WithField("supplier", rawName).Warn("supplier creation failed")
		return Result{Confidence: score, Action: ActionUnmatched}
	}
	return Result{
		SupplierID:   &id,
		SupplierName: rawName,
		Confidence:   score,
		Action:       ActionNew,
	}
}

func (r *Resolver) embeddingScore(a, b string) float64 {
	va, err := r.embedder.Embed(Normalize(a))
	if err != nil {
		return 0
	}
	vb, err := r.embedder.Embed(Normalize(b))
	if err != nil {
		return 0
	}
	return cosine(va, vb)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
