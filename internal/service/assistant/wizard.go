package assistant

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/models"
)

const (
	StepForm   = 1
	StepResult = 2
)

// WizardState is what the termination view renders.
type WizardState struct {
	Step    int                         `json:"step"`
	Status  Status                      `json:"status"`
	Error   string                      `json:"error,omitempty"`
	Request *models.TerminationRequest  `json:"request,omitempty"`
	Result  *models.TerminationResponse `json:"result,omitempty"`
}

// TerminationWizard collects employee data, requests the termination package
// and holds the result until reset.
type TerminationWizard struct {
	gw        Gateway
	runner    Runner
	workspace string
	log       logrus.FieldLogger
	tracker   tracker

	mu      sync.Mutex
	step    int
	request *models.TerminationRequest
	result  *models.TerminationResponse
}

func newTerminationWizard(gw Gateway, o options) *TerminationWizard {
	return &TerminationWizard{
		gw:        gw,
		runner:    o.runner,
		workspace: o.workspace,
		log:       o.log,
		step:      StepForm,
	}
}

// Submit validates req and generates the package. On success the wizard moves
// to the result step.
func (w *TerminationWizard) Submit(ctx context.Context, req models.TerminationRequest) (*models.TerminationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := w.tracker.begin(); err != nil {
		return nil, err
	}

	var res *models.TerminationResponse
	err := w.runner.Do(ctx, w.workspace, "termination", func(ctx context.Context) error {
		var err error
		res, err = w.gw.GenerateTerminationPackage(ctx, req)
		return err
	})
	w.tracker.finish(err, GenerationFailedMessage)
	if err != nil {
		w.log.WithError(err).Warn("termination package failed")
		return nil, err
	}

	w.mu.Lock()
	reqCopy := req
	w.request = &reqCopy
	w.result = res
	w.step = StepResult
	w.mu.Unlock()
	return res, nil
}

// Reset returns to the form step and clears the result.
func (w *TerminationWizard) Reset() {
	w.mu.Lock()
	w.step = StepForm
	w.request = nil
	w.result = nil
	w.mu.Unlock()
	w.tracker.reset()
}

func (w *TerminationWizard) State() WizardState {
	status, errMsg := w.tracker.get()
	w.mu.Lock()
	defer w.mu.Unlock()
	return WizardState{
		Step:    w.step,
		Status:  status,
		Error:   errMsg,
		Request: w.request,
		Result:  w.result,
	}
}
