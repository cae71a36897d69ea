// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/mediawiki"
)

// DefaultReportTemplate is the template used to report an actor on the VM page.
const DefaultReportTemplate = "Benutzer"

var defaultTemplate = mustReportTemplate(DefaultReportTemplate)

// TemplateReportSet is the set of actors reported with the report template.
type TemplateReportSet map[string]struct{}

// ReportTemplate matches {{<name>|<actor>}} transclusions.
type ReportTemplate struct {
	name string
	re   *regexp.Regexp
}

// NewReportTemplate compiles the matcher for template name.
func NewReportTemplate(name string) (*ReportTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("report template name is empty")
	}
	re, err := regexp.Compile(`\{\{` + regexp.QuoteMeta(name) + `\|([^}]+)\}\}`)
	if err != nil {
		return nil, fmt.Errorf("compile report template %q: %w", name, err)
	}
	return &ReportTemplate{name: name, re: re}, nil
}

func mustReportTemplate(name string) *ReportTemplate {
	t, err := NewReportTemplate(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *ReportTemplate) Name() string {
	return t.name
}

// Extract returns the trimmed, de-duplicated actors reported in text.
func (t *ReportTemplate) Extract(text string) TemplateReportSet {
	set := make(TemplateReportSet)
	for _, m := range t.re.FindAllStringSubmatch(text, -1) {
		if actor := strings.TrimSpace(m[1]); actor != "" {
			set[actor] = struct{}{}
		}
	}
	return set
}

// ExtractReported applies the default {{Benutzer|...}} template to text.
func ExtractReported(text string) TemplateReportSet {
	return defaultTemplate.Extract(text)
}

// NewlyReported returns the actors in next but not in prev, sorted.
func NewlyReported(prev, next TemplateReportSet) []string {
	var added []string
	for actor := range next {
		if _, ok := prev[actor]; !ok {
			added = append(added, actor)
		}
	}
	sort.Strings(added)
	return added
}

// VMPageAnalyzer reports addresses newly added to the vandalism-report page.
type VMPageAnalyzer struct {
	site       Site
	rep        Reputation
	classifier Classifier
	counter    *BlockCounter
	template   *ReportTemplate
	out        *Reporter
}

// NewVMPageAnalyzer creates the analyzer. A nil template uses DefaultReportTemplate.
func NewVMPageAnalyzer(site Site, rep Reputation, classifier Classifier, counter *BlockCounter, template *ReportTemplate, out *Reporter) *VMPageAnalyzer {
	if template == nil {
		template = defaultTemplate
	}
	return &VMPageAnalyzer{
		site:       site,
		rep:        rep,
		classifier: classifier,
		counter:    counter,
		template:   template,
		out:        out,
	}
}

// Analyze compares two revisions of the VM page and emits one report per
// newly reported anonymous actor. Registered accounts are ignored. Any
// collaborator error aborts the analysis and is returned.
func (a *VMPageAnalyzer) Analyze(ctx context.Context, oldRev, newRev int64) ([]*Report, error) {
	var prevText string
	if oldRev > 0 {
		text, err := a.site.RevisionText(ctx, oldRev)
		if err != nil {
			return nil, fmt.Errorf("load old revision: %w", err)
		}
		prevText = text
	}
	nextText, err := a.site.RevisionText(ctx, newRev)
	if err != nil {
		return nil, fmt.Errorf("load new revision: %w", err)
	}

	log := logging.Ctx(ctx)
	var reports []*Report
	for _, actor := range NewlyReported(a.template.Extract(prevText), a.template.Extract(nextText)) {
		if !mediawiki.IsAnonymous(actor) {
			log.Debug().Str("actor", actor).Msg("Skipping registered account reported on VM page")
			continue
		}

		rep, err := a.inspect(ctx, actor)
		if err != nil {
			return reports, err
		}
		a.out.Emit(ctx, rep)
		reports = append(reports, rep)
	}
	return reports, nil
}

func (a *VMPageAnalyzer) inspect(ctx context.Context, actor string) (*Report, error) {
	res, err := a.rep.CheckStrong(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("check reported address %s: %w", actor, err)
	}
	allocation, err := a.classifier.Classify(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("classify reported address %s: %w", actor, err)
	}
	blocks, err := a.counter.PreviousBlocks(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("count blocks of %s: %w", actor, err)
	}

	return &Report{
		Reason:         ReasonVMPageReport,
		Actor:          actor,
		Allocation:     allocation,
		VPN:            res.IsProxy(),
		Score:          res.Score,
		Backend:        string(res.Backend),
		PreviousBlocks: blocks,
	}, nil
}
