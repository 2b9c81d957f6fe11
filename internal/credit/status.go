package credit

import (
	"fmt"

	errors "github.com/frahmantamala/dental-credit/internal"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusClinicApproved  Status = "clinic_approved"
	StatusClinicRejected  Status = "clinic_rejected"
	StatusAdminAnalyzing  Status = "admin_analyzing"
	StatusAdminApproved   Status = "admin_approved"
	StatusAdminRejected   Status = "admin_rejected"
	StatusSentToPatient   Status = "sent_to_patient"
	StatusPatientAccepted Status = "patient_accepted"
	StatusPatientRejected Status = "patient_rejected"

	// Legacy values still found in stored rows. Nothing moves into or out of them.
	StatusSentToAdmin       Status = "sent_to_admin"
	StatusAwaitingDocuments Status = "awaiting_documents"
	StatusCancelled         Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending, StatusClinicApproved, StatusClinicRejected, StatusAdminAnalyzing,
	StatusAdminApproved, StatusAdminRejected, StatusSentToPatient, StatusPatientAccepted,
	StatusPatientRejected, StatusSentToAdmin, StatusAwaitingDocuments, StatusCancelled,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.NewValidationFieldError("status", fmt.Sprintf("unknown status %q", s), errors.ErrCodeValidationFailed)
}

// Label is the human readable name shown to users.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Awaiting clinic review"
	case StatusClinicApproved:
		return "Awaiting analysis"
	case StatusClinicRejected:
		return "Rejected by clinic"
	case StatusAdminAnalyzing:
		return "Under analysis"
	case StatusAdminApproved:
		return "Approved"
	case StatusAdminRejected:
		return "Rejected"
	case StatusSentToPatient:
		return "Offers sent to patient"
	case StatusPatientAccepted:
		return "Accepted by patient"
	case StatusPatientRejected:
		return "Declined by patient"
	case StatusSentToAdmin:
		return "Sent to admin"
	case StatusAwaitingDocuments:
		return "Awaiting documents"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// Action names the operation driving a transition.
type Action string

const (
	ActionClinicDecision  Action = "clinic_decision"
	ActionStartAnalysis   Action = "start_analysis"
	ActionAdminDecision   Action = "admin_decision"
	ActionSubmitOffers    Action = "submit_offers"
	ActionSelectOffer     Action = "select_offer"
	ActionSendToPatient   Action = "send_to_patient"
	ActionPatientDecision Action = "patient_decision"
)

type edge struct {
	from   Status
	to     Status
	action Action
}

// Rule describes one legal transition.
type Rule struct {
	CommentRequired bool
}

var transitions = map[edge]Rule{
	{StatusPending, StatusClinicApproved, ActionClinicDecision}: {CommentRequired: true},
	{StatusPending, StatusClinicRejected, ActionClinicDecision}: {CommentRequired: true},

	{StatusClinicApproved, StatusAdminAnalyzing, ActionStartAnalysis}: {},
	{StatusClinicApproved, StatusAdminApproved, ActionAdminDecision}:  {CommentRequired: true},
	{StatusClinicApproved, StatusAdminRejected, ActionAdminDecision}:  {CommentRequired: true},
	{StatusAdminAnalyzing, StatusAdminApproved, ActionAdminDecision}:  {CommentRequired: true},
	{StatusAdminAnalyzing, StatusAdminRejected, ActionAdminDecision}:  {CommentRequired: true},

	{StatusClinicApproved, StatusAdminApproved, ActionSubmitOffers}: {},
	{StatusAdminAnalyzing, StatusAdminApproved, ActionSubmitOffers}: {},
	{StatusAdminApproved, StatusAdminApproved, ActionSubmitOffers}:  {},

	{StatusAdminApproved, StatusClinicApproved, ActionSelectOffer}:  {},
	{StatusAdminApproved, StatusSentToPatient, ActionSendToPatient}: {},

	{StatusSentToPatient, StatusPatientAccepted, ActionPatientDecision}: {},
	{StatusSentToPatient, StatusPatientRejected, ActionPatientDecision}: {},
}

var ErrInvalidTransition = errors.NewConflictError("status transition not allowed", errors.ErrCodeInvalidStatusTransition)

// CheckTransition returns the rule for moving from -> to through action, or ErrInvalidTransition.
func CheckTransition(from, to Status, action Action) (Rule, error) {
	rule, ok := transitions[edge{from: from, to: to, action: action}]
	if !ok {
		e := *ErrInvalidTransition
		e.Message = fmt.Sprintf("cannot move credit request from %s to %s", from, to)
		return Rule{}, &e
	}
	return rule, nil
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s Status) []Status {
	seen := map[Status]bool{}
	var out []Status
	for _, st := range allStatuses {
		for e := range transitions {
			if e.from == s && e.to == st && !seen[st] {
				seen[st] = true
				out = append(out, st)
			}
		}
	}
	return out
}
