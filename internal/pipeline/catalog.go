package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/match"
	"github.com/tradefin/docintake/internal/repository"
)

// CatalogMatcher scores every group of a document against the active
// template taxonomy and appends one CatalogMatch per group. A best score
// under the threshold still gets a row, with a null template, so the group
// can surface for manual approval as a potential new template.
type CatalogMatcher struct {
	templates repository.TemplateRepository
	catalog   repository.CatalogRepository
	threshold float64
	logger    *slog.Logger
}

func NewCatalogMatcher(templates repository.TemplateRepository, catalog repository.CatalogRepository, threshold float64, logger *slog.Logger) *CatalogMatcher {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogMatcher{templates: templates, catalog: catalog, threshold: threshold, logger: logger}
}

// MatchDocument catalogs each group independently: a scorer or persistence
// failure on one group is reported but does not stop its siblings.
func (m *CatalogMatcher) MatchDocument(ctx context.Context, groups []*entity.Group) ([]*entity.CatalogMatch, error) {
	tmpls, err := m.templates.ListActive(ctx)
	if err != nil {
		return nil, common.NewAppError("MATCHER_UNAVAILABLE", "load templates",
			fmt.Errorf("%w: %v", common.ErrMatcherUnavailable, err))
	}

	now := time.Now().UTC()
	var out []*entity.CatalogMatch
	var failures []error
	for _, g := range groups {
		cm := m.matchGroup(g, tmpls, now)
		if err := m.catalog.Append(ctx, []*entity.CatalogMatch{cm}); err != nil {
			failures = append(failures, common.NewAppError("MATCHER_UNAVAILABLE", g.FormType,
				fmt.Errorf("%w: %v", common.ErrMatcherUnavailable, err)))
			continue
		}
		out = append(out, cm)
	}
	return out, errors.Join(failures...)
}

func (m *CatalogMatcher) matchGroup(g *entity.Group, tmpls []*entity.Template, now time.Time) *entity.CatalogMatch {
	var (
		bestScore float64
		bestTmpl  *entity.Template
	)
	for _, t := range tmpls {
		s := match.Score(g.FormType, t.Name)
		if s > bestScore || (s == bestScore && bestTmpl != nil && t.Name < bestTmpl.Name) {
			bestScore = s
			bestTmpl = t
		}
	}

	cm := &entity.CatalogMatch{
		ID:              uuid.New(),
		SessionID:       g.SessionID,
		DocumentID:      g.DocumentID,
		GroupedFormType: g.FormType,
		ConfidenceScore: bestScore,
		CatalogedAt:     now,
	}
	if bestTmpl != nil && bestScore >= m.threshold {
		name := bestTmpl.Name
		id := bestTmpl.ID
		cm.MatchedTemplate = &name
		cm.MatchedTemplateID = &id
		m.logger.Info("catalog.match.ok", "form_type", g.FormType, "template", name, "score", bestScore)
	} else {
		m.logger.Info("catalog.match.none", "form_type", g.FormType, "best_score", bestScore, "threshold", m.threshold)
	}
	return cm
}
