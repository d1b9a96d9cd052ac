package models

import (
	"errors"
	"strings"
)

// EmployeeData is the snapshot of the employee a termination concerns.
type EmployeeData struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	HireDate string `json:"hireDate"`
	Address  string `json:"address"`
	// IsFunktionaer selects the statutory regime of Funktionærloven.
	IsFunktionaer bool `json:"isFunktionaer"`
}

// TerminationRequest is one wizard submission.
type TerminationRequest struct {
	Employee        EmployeeData `json:"employee"`
	TerminationDate string       `json:"terminationDate"`
	Reason          string       `json:"reason"`
	Notes           string       `json:"notes,omitempty"`
}

// Validate checks the fields the wizard marks as required.
func (r TerminationRequest) Validate() error {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("name", r.Employee.Name)
	check("title", r.Employee.Title)
	check("hireDate", r.Employee.HireDate)
	check("address", r.Employee.Address)
	check("terminationDate", r.TerminationDate)
	check("reason", r.Reason)
	if len(missing) > 0 {
		return errors.New("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// TerminationResponse is the generated termination package. All values come
// from the model and are displayed verbatim.
type TerminationResponse struct {
	IsValidReason          bool   `json:"isValidReason"`
	CalculatedNoticePeriod string `json:"calculatedNoticePeriod"`
	LastWorkingDay         string `json:"lastWorkingDay"`
	LegalReference         string `json:"legalReference"`
	LetterContent          string `json:"letterContent"`
	Explanation            string `json:"explanation"`
}
