package assistant

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/document"
)

// AnalyzerState is what the clause analyzer view renders.
type AnalyzerState struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Document string `json:"document,omitempty"`
	Analysis string `json:"analysis,omitempty"`
}

// Analyzer explains uploaded legal documents.
type Analyzer struct {
	gw        Gateway
	runner    Runner
	workspace string
	log       logrus.FieldLogger
	tracker   tracker

	mu       sync.Mutex
	name     string
	analysis string
}

func newAnalyzer(gw Gateway, o options) *Analyzer {
	return &Analyzer{gw: gw, runner: o.runner, workspace: o.workspace, log: o.log}
}

// Analyze returns the model's explanation of doc. On failure the analysis
// text is replaced by a fixed error notice.
func (a *Analyzer) Analyze(ctx context.Context, doc document.Document) (string, error) {
	if err := a.tracker.begin(); err != nil {
		return "", err
	}

	var text string
	err := a.runner.Do(ctx, a.workspace, "analyze", func(ctx context.Context) error {
		var err error
		text, err = a.gw.AnalyzeLegalDocument(ctx, doc)
		return err
	})
	a.tracker.finish(err, AnalysisFailedMessage)

	a.mu.Lock()
	a.name = doc.Name
	if err != nil {
		a.analysis = AnalysisFailedMessage
	} else {
		a.analysis = text
	}
	a.mu.Unlock()

	if err != nil {
		a.log.WithError(err).WithField("kind", doc.Kind.String()).Warn("document analysis failed")
		return "", err
	}
	return text, nil
}

func (a *Analyzer) State() AnalyzerState {
	status, errMsg := a.tracker.get()
	a.mu.Lock()
	defer a.mu.Unlock()
	return AnalyzerState{Status: status, Error: errMsg, Document: a.name, Analysis: a.analysis}
}
