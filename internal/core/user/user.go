package user

const (
	RolePatient = "patient"
	RoleClinic  = "clinic"
	RoleAdmin   = "admin"
)

// Actor is the authenticated caller as seen by the domain services.
type Actor struct {
	ID          int64
	Email       string
	Role        string
	ClinicIDs   []int64
	Permissions []string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.HasPermission("admin")
}

func (a Actor) IsPatient() bool {
	return a.Role == RolePatient
}

func (a Actor) IsClinicStaff() bool {
	return a.Role == RoleClinic && len(a.ClinicIDs) > 0
}

func (a Actor) IsClinicMember(clinicID int64) bool {
	for _, id := range a.ClinicIDs {
		if id == clinicID {
			return true
		}
	}
	return false
}

func (a Actor) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CanView reports whether the actor may read a request owned by patientID at clinicID.
func (a Actor) CanView(patientID, clinicID int64) bool {
	switch {
	case a.IsAdmin():
		return true
	case a.ID == patientID:
		return true
	default:
		return a.IsClinicMember(clinicID)
	}
}
