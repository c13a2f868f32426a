package model

// Resident is a read-only projection of the barangay resident directory.
// The directory owns the table; this service never writes it.
type Resident struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name"`
	Contact    string `json:"contact,omitempty"`
	Email      string `json:"email,omitempty"`
}

func (Resident) TableName() string {
	return "residents"
}

func (r Resident) FullName() string {
	name := r.FirstName
	if r.MiddleName != "" {
		name += " " + r.MiddleName
	}
	if r.LastName != "" {
		name += " " + r.LastName
	}
	return name
}
