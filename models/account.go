package models

type Account struct {
	ID      string  `json:"id"`
	Email   string  `json:"email"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	DisplayName string `json:"display_name"`
	Gender      string `json:"gender"`
}

// MissingForPayment lists the profile fields a paid submission requires but that are empty.
func (p Profile) MissingForPayment() []string {
	var missing []string
	if p.Gender == "" {
		missing = append(missing, "gender")
	}
	return missing
}

// Merge returns p with every non-empty field of patch applied.
func (p Profile) Merge(patch Profile) Profile {
	if patch.DisplayName != "" {
		p.DisplayName = patch.DisplayName
	}
	if patch.Gender != "" {
		p.Gender = patch.Gender
	}
	return p
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
