package models

// UserInfo — профиль, возвращаемый при логине вместе с токеном
type UserInfo struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Role      Role   `json:"role"`
	Email     string `json:"email,omitempty"`
	Token     string `json:"token,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	CompanyID string `json:"companyId,omitempty"`
}
