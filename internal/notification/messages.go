package notification

import "fmt"

// Decision outcomes used to pick the message for a credit transition.
const (
	OutcomeApproved  = "approved"
	OutcomeRejected  = "rejected"
	OutcomeAnalyzing = "analyzing"
)

func ref(id int64) *int64 { return &id }

func ClinicDecisionForPatient(patientID, requestID int64, outcome, reason string) Draft {
	d := Draft{UserID: patientID, CreditRequestID: ref(requestID), Type: TypeCreditUpdate}
	if outcome == OutcomeApproved {
		d.Title = "Request Approved by Clinic"
		d.Message = "Your credit request was approved by the clinic and sent for final review."
		return d
	}
	d.Title = "Request Rejected by Clinic"
	d.Message = "Your credit request was rejected by the clinic."
	if reason != "" {
		d.Message = fmt.Sprintf("Your credit request was rejected by the clinic. Reason: %s", reason)
	}
	return d
}

func AdminDecisionForPatient(patientID, requestID int64, outcome, reason string) Draft {
	d := Draft{UserID: patientID, CreditRequestID: ref(requestID), Type: TypeCreditUpdate}
	switch outcome {
	case OutcomeApproved:
		d.Title = "Credit Approved!"
		d.Message = "Your credit request was approved! You will receive the payment instructions shortly."
	case OutcomeRejected:
		d.Title = "Credit Rejected"
		d.Message = fmt.Sprintf("Your credit request was rejected. Reason: %s", reason)
	default:
		d.Title = "Request Under Review"
		d.Message = "Your credit request is being reviewed by the administrative team."
	}
	return d
}

// AdminDecisionForClinic builds one draft per clinic user.
func AdminDecisionForClinic(clinicUserIDs []int64, requestID int64, patientName, outcome, reason string) []Draft {
	var title, message string
	switch outcome {
	case OutcomeApproved:
		title = "Request Approved by Admin"
		message = fmt.Sprintf("The credit request of patient %s was approved by the administrator.", patientName)
	case OutcomeRejected:
		title = "Request Rejected by Admin"
		message = fmt.Sprintf("The credit request of patient %s was rejected by the administrator. Reason: %s", patientName, reason)
	default:
		title = "Request Under Review"
		message = fmt.Sprintf("The credit request of patient %s is being reviewed by the administrator.", patientName)
	}

	drafts := make([]Draft, 0, len(clinicUserIDs))
	for _, uid := range clinicUserIDs {
		drafts = append(drafts, Draft{
			UserID:          uid,
			CreditRequestID: ref(requestID),
			Type:            TypeCreditUpdate,
			Title:           title,
			Message:         message,
		})
	}
	return drafts
}

func OffersSentToPatient(patientID, requestID int64, offerCount int) Draft {
	return Draft{
		UserID:          patientID,
		CreditRequestID: ref(requestID),
		Type:            TypeCreditUpdate,
		Title:           "Credit Offers Available",
		Message:         fmt.Sprintf("You have %d credit offer(s) waiting for your decision.", offerCount),
	}
}

func PatientDecisionForClinic(clinicUserIDs []int64, requestID int64, patientName string, accepted bool) []Draft {
	verb := "declined"
	if accepted {
		verb = "accepted"
	}
	drafts := make([]Draft, 0, len(clinicUserIDs))
	for _, uid := range clinicUserIDs {
		drafts = append(drafts, Draft{
			UserID:          uid,
			CreditRequestID: ref(requestID),
			Type:            TypeCreditUpdate,
			Title:           "Patient Responded to Offer",
			Message:         fmt.Sprintf("Patient %s %s the credit offer.", patientName, verb),
		})
	}
	return drafts
}

func PaymentConfirmed(patientID, requestID int64, amount float64) Draft {
	return Draft{
		UserID:          patientID,
		CreditRequestID: ref(requestID),
		Type:            TypeSuccess,
		Title:           "Payment Confirmed",
		Message:         fmt.Sprintf("Your payment of R$%.2f was confirmed successfully.", amount),
	}
}
