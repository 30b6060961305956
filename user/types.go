package user

// Collection holds one profile document per user, keyed by user id.
const Collection = "user"

type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PhoneNumber string `json:"phoneNumber"`
	AvatarURL   string `json:"avatarUrl"`
}

// Ref snapshots the display fields of p.
func (p Profile) Ref() ContactRef {
	return ContactRef(p)
}

// ContactRef is a copy of a profile's display fields taken when a chat or
// status post is created. It is not updated when the profile changes.
type ContactRef struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PhoneNumber string `json:"phoneNumber"`
	AvatarURL   string `json:"avatarUrl"`
}

// Update is a partial profile. Nil fields keep their stored value.
type Update struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatarUrl"`
}

type RegisterDto struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginDto struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
