package models

type User struct {
	BaseModel
	Email         string  `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash  string  `json:"-" gorm:"type:text;not null"`
	Name          string  `json:"name" gorm:"type:varchar(100);not null"`
	EmailVerified bool    `json:"emailVerification" gorm:"not null;default:false"`
	AuthProvider  *string `json:"authProvider,omitempty" gorm:"type:varchar(20)"`

	Files []FileRecord `json:"-" gorm:"foreignKey:OwnerID"`
	Meta  *UserMeta    `json:"-" gorm:"foreignKey:UserID"`
}
